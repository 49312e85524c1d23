package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	channelPrefix  = "tracking:"
	channelSuffix  = ":broadcast"
	channelPattern = channelPrefix + "*" + channelSuffix
	clientBuffer   = 64
)

// Hub fans tracking samples out to the websocket clients watching a session.
// With Redis configured, samples are relayed to the hubs of other instances.
type Hub struct {
	redis   *redis.Client
	origin  string
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	SessionID string
	Send      chan []byte
}

// envelope tags relayed payloads with the publishing hub so it can skip its own.
type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		h.done = make(chan struct{})
		h.pubsub = redisClient.PSubscribe(ctx, channelPattern)
		if _, err := h.pubsub.Receive(ctx); err != nil {
			log.Warn().Err(err).Msg("stream: redis subscribe")
		}
		go h.subscribeRedis(h.pubsub.Channel())
	}
	return h
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessionClients, ok := h.clients[client.SessionID]; ok {
		if _, registered := sessionClients[client]; !registered {
			return
		}
		delete(sessionClients, client)
		if len(sessionClients) == 0 {
			delete(h.clients, client.SessionID)
		}
		close(client.Send)
	}
}

// Subscribers returns how many local clients watch the session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Broadcast delivers payload to local clients of the session and publishes it
// for other instances. Slow clients drop messages instead of blocking.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.deliver(sessionID, payload)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Origin: h.origin, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("stream: encode envelope")
		return
	}
	if err := h.redis.Publish(context.Background(), redisChannel(sessionID), msg).Err(); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("stream: redis publish")
	}
}

// Close stops relaying from Redis. Local delivery keeps working.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	h.cancel()
	err := h.pubsub.Close()
	<-h.done
	return err
}

func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(messages <-chan *redis.Message) {
	defer close(h.done)
	for msg := range messages {
		sessionID := sessionIDFromChannel(msg.Channel)
		if sessionID == "" {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("stream: bad envelope")
			continue
		}
		if env.Origin == h.origin {
			continue
		}
		h.deliver(sessionID, env.Payload)
	}
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
