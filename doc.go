// Package mailstore is a horizontally scalable mail storage backend:
// message metadata and label state over a wide-column store, raw message
// bytes over a content-addressed blob layer.
//
// # Architecture
//
// A Service owns the storage connections; Mailbox clients are cheap
// handles scoped to one mailbox id. Metadata lives in a store.Store
// implementation (store/memory, store/redis, store/postgres); raw
// message source lives behind named blob profiles (blob/memory, blob/s3,
// blob/gcs), compressed and encrypted by a configurable codec.
//
// There are no distributed locks and no cross-row transactions.
// Consistency is structural: message ids are time-ordered and unique,
// label indexes are ordered by id value, counters are maintained with
// commutative deltas, and every mutation is idempotent. A crash between
// a row write and its index update leaves drift that scans tolerate and
// Scrub repairs from the rows, the authoritative record.
//
// # Usage
//
//	st := redis.New(redis.WithAddr("localhost:6379"))
//	svc, err := mailstore.NewService(
//		mailstore.WithStore(st),
//		mailstore.WithBlobStore(mailstore.DefaultBlobProfile, blobStore),
//		mailstore.WithBlobCodec(blob.Codec{
//			Compression: blob.CompressionDeflate,
//			KeyAlias:    "k1",
//			Keys:        blob.Keyring{"k1": blob.DeriveKey("k1", secret)},
//		}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	if err := svc.CreateMailbox(ctx, "user@example.com"); err != nil { ... }
//	mb := svc.Mailbox("user@example.com")
//	id, err := mb.Put(ctx, row, rawBytes)
package mailstore
