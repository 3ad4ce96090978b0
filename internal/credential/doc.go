// Package credential implements the credential service: the create, update,
// delete and query operations over a kv.Backend.
//
// The service is the only writer of the record store and owner index.
// Every mutation validates all preconditions first and then performs its
// writes inside one Backend.Update, so a rejected call never leaves a
// partial write behind.
//
// Events are delivered to a caller-supplied EventSink after commit.
package credential
