// Package s3 provides S3 implementations of the blobstore interfaces.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("logs/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	projections := projection.NewStore(store, "mylog")
//
// # Features
//
//   - Conditional creates via If-None-Match for projection commits
//   - Uploads through the transfer manager with CRC32C checksums
//   - Automatic pagination for listing
//   - DynamoDB-coordinated commits for buckets without conditional writes
//   - Configurable prefix for multi-tenant isolation
package s3
