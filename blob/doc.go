// Package blob stores uploaded files as write-once objects and issues
// time-bounded signed read URLs for them.
//
// Objects are addressed by collection and filename under a root URL that any
// afs scheme can serve (file://, mem://, s3://, gs://):
//
//	store, _ := blob.NewStore("file:///var/lib/corpora/blobs", blob.WithSigner(signer))
//	uri, _ := store.Put(ctx, "datasheets", "ahv85003.pdf", r)
//	link, _ := store.SignedURL(uri, 15*time.Minute)
package blob
