// Package crawler defines the domain types shared by the donkey crawl engine:
// categories, progress, raw and normalized listing records, the collaborator
// interfaces the state machine calls into, and the error taxonomy.
package crawler
