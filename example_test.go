package zlog_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hupe1980/zlog"
	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/blobstore"
	"github.com/hupe1980/zlog/sequencer"
)

func memoryCluster() zlog.Cluster {
	return zlog.Cluster{
		Backend:     backend.NewMemoryBackend(),
		Projections: blobstore.NewMemoryStore(),
		Sequencer:   sequencer.New(),
	}
}

func Example() {
	ctx := context.Background()

	l, err := zlog.Create(ctx, memoryCluster(), "example.log", 4)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	pos, err := l.Append(ctx, []byte("hello"))
	if err != nil {
		log.Fatal(err)
	}
	data, err := l.Read(ctx, pos)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(pos, string(data))
	// Output: 0 hello
}

func ExampleStream() {
	ctx := context.Background()

	l, err := zlog.Create(ctx, memoryCluster(), "example.log", 4)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	orders := l.OpenStream(1)
	audit := l.OpenStream(2)

	_, _ = orders.Append(ctx, []byte("order-1"))
	_, _ = audit.Append(ctx, []byte("login"))
	_, _ = l.MultiAppend(ctx, []byte("order-2"), []uint64{1, 2})

	if err := orders.Sync(ctx); err != nil {
		log.Fatal(err)
	}
	for {
		pos, data, err := orders.ReadNext(ctx)
		if errors.Is(err, zlog.ErrExhausted) {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(pos, string(data))
	}
	// Output:
	// 0 order-1
	// 2 order-2
}

func ExampleLog_Reconfigure() {
	ctx := context.Background()

	l, err := zlog.Create(ctx, memoryCluster(), "example.log", 2)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	for _, s := range []string{"a", "b", "c"} {
		if _, err := l.Append(ctx, []byte(s)); err != nil {
			log.Fatal(err)
		}
	}

	p, err := l.Reconfigure(ctx, 4)
	if err != nil {
		log.Fatal(err)
	}
	pos, err := l.Append(ctx, []byte("d"))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("epoch", p.Epoch)
	fmt.Println(l.StripeHistory())
	fmt.Println(pos, l.FindObject(pos))
	// Output:
	// epoch 1
	// [{0 0 2} {1 3 4}]
	// 3 example.log.3
}
