// Package realtime implements the WebSocket side of sitegate.
//
// A connection is authorized once, from the session cookie on the upgrade
// request: the Authorizer resolves the session to an identity, reads that
// identity's site memberships and joins the connection to one Channel per
// site. Anonymous connections are accepted and join nothing. Build status
// events published to a site reach every connection joined to its channel.
package realtime
