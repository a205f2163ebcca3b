// Package session owns the overlay transport session: the connection,
// authentication and key-exchange state machine, the tiered outbound
// encryption path, and the routing of inbound results to the presenter.
//
// One Session corresponds to one logical conversation with the server
// across any number of reconnects. The client key pair lives for the
// Session's lifetime; the symmetric session key lives for one
// authenticated connection and is wiped on disconnect.
package session
