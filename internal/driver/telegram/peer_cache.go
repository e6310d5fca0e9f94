package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"subroll/pkg/subroll"

	"github.com/gotd/td/tg"
)

// peerKey separates users from chats. Groups, supergroups and broadcast
// channels share one namespace because a supergroup is surfaced as a group
// conversation but addressed with a channel peer.
type peerKey struct {
	private bool
	id      string
}

func keyFor(conversationType subroll.ConversationType, id string) peerKey {
	return peerKey{private: conversationType == subroll.ConversationTypePrivate, id: id}
}

// PeerCache maps conversations seen in updates to the input peers needed to
// address them in outbound RPCs.
type PeerCache struct {
	mu    sync.RWMutex
	peers map[peerKey]tg.InputPeerClass
}

// NewPeerCache creates an empty peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{peers: make(map[peerKey]tg.InputPeerClass)}
}

// RememberEnvelope records every user and chat attached to one update.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		if peer := user.AsInputPeer(); peer != nil {
			c.storeLocked(keyFor(subroll.ConversationTypePrivate, strconv.FormatInt(id, 10)), peer)
		}
	}
	for id, chat := range envelope.chatsByID {
		if chat.inputPeer != nil {
			c.storeLocked(keyFor(chat.kind, strconv.FormatInt(id, 10)), chat.inputPeer)
		}
	}
	knownPeers.Set(float64(len(c.peers)))
}

// RememberConversation records one conversation's peer.
func (c *PeerCache) RememberConversation(chat ChatRef, peer tg.InputPeerClass) {
	if c == nil || peer == nil || chat.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(keyFor(chat.Type, chat.ID), peer)
	knownPeers.Set(float64(len(c.peers)))
}

// Resolve returns a copy of the input peer for conversation.
func (c *PeerCache) Resolve(conversation subroll.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: invalid conversation")
	}

	c.mu.RLock()
	peer, found := c.peers[keyFor(conversation.Type, conversation.ID)]
	c.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("resolve peer: conversation %s/%s not seen yet", conversation.Type, conversation.ID)
	}

	return cloneInputPeer(peer), nil
}

// Len returns the number of known peers.
func (c *PeerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.peers)
}

func (c *PeerCache) storeLocked(key peerKey, peer tg.InputPeerClass) {
	c.peers[key] = cloneInputPeer(peer)
}

// cloneInputPeer copies the concrete peer types so callers never share
// mutable RPC arguments with the cache.
func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		clone := *typed
		return &clone
	case *tg.InputPeerChat:
		clone := *typed
		return &clone
	case *tg.InputPeerChannel:
		clone := *typed
		return &clone
	case *tg.InputPeerSelf:
		return &tg.InputPeerSelf{}
	default:
		return peer
	}
}
