package socketio

import (
	"net"
	"sync"
)

// ConnectionLimiter caps concurrent remote UI clients. Loopback clients
// (the on-device display) are never limited. When a new remote client
// exceeds the cap the oldest remote client is evicted.
type ConnectionLimiter struct {
	mu        sync.Mutex
	maxRemote int
	remote    []string          // oldest first
	clients   map[string]string // id -> ip
}

func NewConnectionLimiter(maxRemote int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxRemote: maxRemote,
		clients:   make(map[string]string),
	}
}

// TryAdd registers a client. It reports the id of an evicted remote client,
// or "" when nobody had to go. Registration itself always succeeds.
func (cl *ConnectionLimiter) TryAdd(clientID, remoteIP string) (allowed bool, evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.clients[clientID]; exists {
		return true, ""
	}
	cl.clients[clientID] = remoteIP

	if isLoopback(remoteIP) {
		return true, ""
	}

	cl.remote = append(cl.remote, clientID)
	if cl.maxRemote > 0 && len(cl.remote) > cl.maxRemote {
		evictedID = cl.remote[0]
		cl.remote = cl.remote[1:]
		delete(cl.clients, evictedID)
	}
	return true, evictedID
}

// Remove forgets a client on disconnect.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.clients[clientID]; !exists {
		return
	}
	delete(cl.clients, clientID)

	for i, id := range cl.remote {
		if id == clientID {
			cl.remote = append(cl.remote[:i], cl.remote[i+1:]...)
			break
		}
	}
}

// RemoteCount returns the number of tracked remote clients.
func (cl *ConnectionLimiter) RemoteCount() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.remote)
}

func isLoopback(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
