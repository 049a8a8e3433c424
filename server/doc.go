/*
Package server implements the rendezvous relay core. Two independently
initiated connections, a host and a client, locate each other via a shared
session identifier; once both roles are present the relay forwards opaque
messages between them in both directions until either side disconnects, at
which point the other side is severed as well.

The core consumes abstract message connections (Conn). How a connection
declares its role and session identifier is a transport concern, handled by
the listener packages underneath.
*/
package server
