package zlog

import (
	"errors"
	"io"

	"go.uber.org/multierr"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/blobstore"
	"github.com/hupe1980/zlog/sequencer"
)

// Cluster bundles the services logs are built on. Many logs may share one
// cluster.
type Cluster struct {
	// Backend stores log entries in striped objects.
	Backend backend.Backend
	// Projections persists each log's projection history.
	Projections blobstore.ConditionalStore
	// Sequencer allocates positions and tracks stream backpointers.
	Sequencer sequencer.Client
}

func (c Cluster) validate() error {
	switch {
	case c.Backend == nil:
		return errors.New("cluster: backend is required")
	case c.Projections == nil:
		return errors.New("cluster: projection store is required")
	case c.Sequencer == nil:
		return errors.New("cluster: sequencer is required")
	}
	return nil
}

// Close releases the cluster's services. Services that do not implement
// io.Closer are left alone.
func (c Cluster) Close() error {
	var err error
	if c.Backend != nil {
		err = multierr.Append(err, c.Backend.Close())
	}
	if closer, ok := c.Projections.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	if closer, ok := c.Sequencer.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}
