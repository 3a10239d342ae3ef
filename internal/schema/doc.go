// Package schema defines the records pinsync stores locally and exchanges
// with the backend.
//
// # Overview
//
// There are two shapes for every record:
//
//   - Local shapes (Collection, Pin) are what the on-device store holds.
//     A Pin nests its page metadata under Page and its AI summary under
//     Summary.
//   - Remote shapes (RemoteCollection, RemotePin) are the flat JSON
//     documents served by the REST API.
//
// Conversion between the two is a field rename only:
//
//	remote collection.description  <->  local collection.goal
//	remote pin.url                 <->  local pin.page.url
//	remote pin.title               <->  local pin.page.title
//	remote pin.imageUrl            <->  local pin.page.ogImageUrl
//	remote pin.description         <->  local pin.summary.text
//
// Ids are opaque strings and are preserved verbatim in both directions.
// The sync engine relies on this: a record is "already present" on the other
// side exactly when its id is.
//
// # Sync state
//
// SyncSettings and SyncStatus are persisted as JSON blobs under well-known
// metadata keys so any process sharing the database can display them.
package schema
