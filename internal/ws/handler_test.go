package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hichat/internal/domain"
	"hichat/internal/hub"
	"hichat/internal/service"
)

// fakeConn records every payload written to it.
type fakeConn struct {
	mu     sync.Mutex
	events []any
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

type memUsers struct {
	users map[string]*domain.User
}

func (r *memUsers) Create(ctx context.Context, u *domain.User) error { return nil }
func (r *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.users[id], nil
}
func (r *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}
func (r *memUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return nil, nil
}
func (r *memUsers) SearchByUsername(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	return nil, nil
}
func (r *memUsers) Update(ctx context.Context, u *domain.User) error { return nil }

type memChats struct {
	mu    sync.Mutex
	chats map[string]*domain.Chat
}

func (r *memChats) Create(ctx context.Context, c *domain.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[c.ID] = c
	return nil
}

func (r *memChats) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chats[id], nil
}

func (r *memChats) FindByPair(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.ChatPairKey(userA, userB)
	for _, c := range r.chats {
		if domain.ChatPairKey(c.Members[0], c.Members[1]) == key {
			return c, nil
		}
	}
	return nil, nil
}

func (r *memChats) ListForUser(ctx context.Context, userID string) ([]*domain.Chat, error) {
	return nil, nil
}

func (r *memChats) ResetUnread(ctx context.Context, chatID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chats[chatID]; ok {
		c.Unread[userID] = 0
	}
	return nil
}

func (r *memChats) IncrementUnreadExcept(ctx context.Context, chatID, senderID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatID]
	if !ok {
		return nil, errors.New("no such chat")
	}
	for _, m := range c.Members {
		if m != senderID {
			c.Unread[m]++
		}
	}
	counts := make(map[string]int, len(c.Unread))
	for k, v := range c.Unread {
		counts[k] = v
	}
	return counts, nil
}

type memMessages struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (r *memMessages) Create(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *memMessages) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *memMessages) ListForChat(ctx context.Context, chatID string) ([]*domain.Message, error) {
	return nil, nil
}

func (r *memMessages) LastForChat(ctx context.Context, chatID string) (*domain.Message, error) {
	return nil, nil
}

type relayFixture struct {
	hub      *hub.Hub
	chats    *service.ChatService
	messages *memMessages
	alice    *domain.User
	bob      *domain.User
	chatID   string
}

// newRelayFixture wires two users with an existing chat into a real chat
// service and connection registry.
func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	alice := &domain.User{ID: "u-alice", Username: "alice", Avatar: "/a.png"}
	bob := &domain.User{ID: "u-bob", Username: "bob", Avatar: "/b.png"}

	users := &memUsers{users: map[string]*domain.User{alice.ID: alice, bob.ID: bob}}
	chats := &memChats{chats: map[string]*domain.Chat{}}
	messages := &memMessages{}

	chat := &domain.Chat{
		ID:        "chat-1",
		Members:   []string{alice.ID, bob.ID},
		Unread:    map[string]int{alice.ID: 0, bob.ID: 0},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, chats.Create(context.Background(), chat))

	h := hub.New()
	return &relayFixture{
		hub:      h,
		chats:    service.NewChatService(users, chats, messages, h, 5000),
		messages: messages,
		alice:    alice,
		bob:      bob,
		chatID:   chat.ID,
	}
}

func (f *relayFixture) sessionFor(u *domain.User) (*session, *fakeConn) {
	conn := &fakeConn{}
	f.hub.Register(u.ID, conn)
	return &session{hub: f.hub, conn: conn, user: u, chats: f.chats}, conn
}

func TestOfferForwardedToTargetOnly(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, aliceConn := f.sessionFor(f.alice)
	_, bobConn := f.sessionFor(f.bob)

	aliceSess.handleEvent(context.Background(), map[string]any{
		"type":           EventCallOffer,
		"target_user_id": f.bob.ID,
		"call_id":        "call-1",
		"sdp":            "v=0 offer",
	})

	got := bobConn.received()
	require.Len(t, got, 1)
	fwd, ok := got[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, EventCallOffer, fwd["type"])
	assert.Equal(t, f.alice.ID, fwd["caller_id"])
	assert.Equal(t, "call-1", fwd["call_id"])
	assert.Equal(t, "v=0 offer", fwd["sdp"])
	assert.Equal(t, "alice", fwd["caller_username"])
	assert.Equal(t, "/a.png", fwd["caller_avatar"])

	assert.Empty(t, aliceConn.received(), "signaling is never echoed to the sender")
}

func TestOfferToOfflineTargetVanishes(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, aliceConn := f.sessionFor(f.alice)

	aliceSess.handleEvent(context.Background(), map[string]any{
		"type":           EventCallOffer,
		"target_user_id": f.bob.ID,
		"call_id":        "call-1",
		"sdp":            "v=0 offer",
	})

	assert.Empty(t, aliceConn.received(), "no error event comes back for an offline target")
}

func TestSignalingWithoutTargetOrCallIDIsDropped(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, _ := f.sessionFor(f.alice)
	_, bobConn := f.sessionFor(f.bob)

	aliceSess.handleEvent(context.Background(), map[string]any{
		"type":    EventCallOffer,
		"call_id": "call-1",
	})
	aliceSess.handleEvent(context.Background(), map[string]any{
		"type":           EventCallOffer,
		"target_user_id": f.bob.ID,
	})

	assert.Empty(t, bobConn.received())
}

func TestAnswerCarriesNoProfileSnapshot(t *testing.T) {
	f := newRelayFixture(t)
	bobSess, _ := f.sessionFor(f.bob)
	_, aliceConn := f.sessionFor(f.alice)

	bobSess.handleEvent(context.Background(), map[string]any{
		"type":           EventCallAnswer,
		"target_user_id": f.alice.ID,
		"call_id":        "call-1",
		"sdp":            "v=0 answer",
	})

	got := aliceConn.received()
	require.Len(t, got, 1)
	fwd := got[0].(map[string]any)
	assert.Equal(t, EventCallAnswer, fwd["type"])
	assert.Equal(t, "v=0 answer", fwd["sdp"])
	assert.NotContains(t, fwd, "caller_username", "only the offer carries the caller profile")
}

func TestMuteToggleForwardsState(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, _ := f.sessionFor(f.alice)
	_, bobConn := f.sessionFor(f.bob)

	aliceSess.handleEvent(context.Background(), map[string]any{
		"type":           EventCallMuteToggle,
		"target_user_id": f.bob.ID,
		"call_id":        "call-1",
		"muted":          true,
	})

	got := bobConn.received()
	require.Len(t, got, 1)
	fwd := got[0].(map[string]any)
	assert.Equal(t, true, fwd["muted"])
}

func TestChatMessageFansOutToRoomAndUnread(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, aliceConn := f.sessionFor(f.alice)
	bobSess, bobConn := f.sessionFor(f.bob)

	ctx := context.Background()
	aliceSess.handleEvent(ctx, map[string]any{"type": EventJoinChat, "chat_id": f.chatID})
	bobSess.handleEvent(ctx, map[string]any{"type": EventJoinChat, "chat_id": f.chatID})

	aliceSess.handleEvent(ctx, map[string]any{
		"type":    EventChatMessage,
		"chat_id": f.chatID,
		"text":    "hi bob",
	})

	aliceGot := aliceConn.received()
	require.Len(t, aliceGot, 1, "the sender sees the message but no unread update")
	msgEv, ok := aliceGot[0].(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "hi bob", msgEv.Text)
	assert.Equal(t, f.alice.ID, msgEv.SenderID)
	assert.Equal(t, "alice", msgEv.SenderUsername)

	bobGot := bobConn.received()
	require.Len(t, bobGot, 2, "the other member gets the message plus an unread update")
	unreadEv, ok := bobGot[1].(UnreadEvent)
	require.True(t, ok)
	assert.Equal(t, f.chatID, unreadEv.ChatID)
	assert.Equal(t, 1, unreadEv.Unread)
}

func TestInvalidChatMessageEmitsNothing(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, aliceConn := f.sessionFor(f.alice)
	bobSess, bobConn := f.sessionFor(f.bob)

	ctx := context.Background()
	aliceSess.handleEvent(ctx, map[string]any{"type": EventJoinChat, "chat_id": f.chatID})
	bobSess.handleEvent(ctx, map[string]any{"type": EventJoinChat, "chat_id": f.chatID})

	aliceSess.handleEvent(ctx, map[string]any{
		"type":    EventChatMessage,
		"chat_id": f.chatID,
		"text":    "   ",
	})

	assert.Empty(t, aliceConn.received())
	assert.Empty(t, bobConn.received())
	f.messages.mu.Lock()
	assert.Empty(t, f.messages.msgs, "rejected messages are not persisted")
	f.messages.mu.Unlock()
}

func TestNonMemberCannotJoinRoom(t *testing.T) {
	f := newRelayFixture(t)
	mallory := &domain.User{ID: "u-mallory", Username: "mallory"}

	mallorySess, malloryConn := f.sessionFor(mallory)
	aliceSess, _ := f.sessionFor(f.alice)

	ctx := context.Background()
	mallorySess.handleEvent(ctx, map[string]any{"type": EventJoinChat, "chat_id": f.chatID})
	aliceSess.handleEvent(ctx, map[string]any{"type": EventJoinChat, "chat_id": f.chatID})

	aliceSess.handleEvent(ctx, map[string]any{
		"type":    EventChatMessage,
		"chat_id": f.chatID,
		"text":    "secret",
	})

	assert.Empty(t, malloryConn.received(), "join by a non-member is silently ignored")
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newRelayFixture(t)
	aliceSess, aliceConn := f.sessionFor(f.alice)

	aliceSess.handleEvent(context.Background(), map[string]any{"type": "nonsense"})

	assert.Empty(t, aliceConn.received())
}
