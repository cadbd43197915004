package handler

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"foodshare/backend/internal/auth"
	"foodshare/backend/internal/data"
	"foodshare/backend/internal/geo"
	"foodshare/backend/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---- fakes -----------------------------------------------------------

type fakeDons struct {
	dons         []*data.Don
	lastObserver *geo.Point
	lastNearPt   *geo.Point
	lastNearMax  int
	err          error
}

func (f *fakeDons) Create(ctx context.Context, don *data.Don) (*data.Don, error) {
	if f.err != nil {
		return nil, f.err
	}
	don.ID = bson.NewObjectID()
	return don, nil
}

func (f *fakeDons) List(ctx context.Context, observer *geo.Point) ([]*data.Don, error) {
	f.lastObserver = observer
	return f.dons, f.err
}

func (f *fakeDons) Near(ctx context.Context, pt *geo.Point, maxMeters int) ([]*data.Don, error) {
	f.lastNearPt = pt
	f.lastNearMax = maxMeters
	return f.dons, f.err
}

func (f *fakeDons) GetByID(ctx context.Context, id bson.ObjectID) (*data.Don, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &data.Don{ID: id, Title: "fake"}, nil
}

func (f *fakeDons) GetMany(ctx context.Context, ids []bson.ObjectID) ([]*data.Don, error) {
	if f.err != nil {
		return nil, f.err
	}
	dons := make([]*data.Don, 0, len(ids))
	for _, id := range ids {
		dons = append(dons, &data.Don{ID: id})
	}
	return dons, nil
}

func (f *fakeDons) Update(ctx context.Context, id bson.ObjectID, don *data.Don) (*data.Don, error) {
	if f.err != nil {
		return nil, f.err
	}
	don.ID = id
	return don, nil
}

func (f *fakeDons) Delete(ctx context.Context, id bson.ObjectID) (*data.Don, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &data.Don{ID: id}, nil
}

type fakeUsers struct {
	user      *data.User
	favorites []bson.ObjectID
	err       error
	presence  map[string]bool
}

func (f *fakeUsers) CreateUser(ctx context.Context, email, hashedPassword, token string) (*data.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &data.User{ID: bson.NewObjectID(), Email: email, Password: hashedPassword, Token: token}, nil
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*data.User, error) {
	if f.user == nil {
		return nil, data.ErrNotFound
	}
	return f.user, f.err
}

func (f *fakeUsers) GetUserByToken(ctx context.Context, token string) (*data.User, error) {
	if f.user == nil || f.user.Token != token {
		return nil, data.ErrNotFound
	}
	return f.user, f.err
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil || f.user.ID != id {
		return nil, data.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, token string, p data.ProfileUpdate) (*data.User, error) {
	if f.user == nil || f.user.Token != token {
		return nil, data.ErrNotFound
	}
	return f.user, f.err
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, token, newHash string) error {
	return f.err
}

func (f *fakeUsers) Favorites(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	if f.user == nil || f.user.ID != userID {
		return nil, data.ErrNotFound
	}
	return f.favorites, f.err
}

func (f *fakeUsers) AddFavorite(ctx context.Context, userID, donID bson.ObjectID) ([]bson.ObjectID, error) {
	if f.user == nil || f.user.ID != userID {
		return nil, data.ErrNotFound
	}
	f.favorites = append(f.favorites, donID)
	return f.favorites, nil
}

func (f *fakeUsers) RemoveFavorite(ctx context.Context, userID, donID bson.ObjectID) ([]bson.ObjectID, error) {
	if f.user == nil || f.user.ID != userID {
		return nil, data.ErrNotFound
	}
	return f.favorites, nil
}

func (f *fakeUsers) SetPresence(ctx context.Context, token string, online bool) error {
	if f.user == nil || f.user.Token != token {
		return data.ErrNotFound
	}
	if f.presence == nil {
		f.presence = map[string]bool{}
	}
	f.presence[token] = online
	return nil
}

type fakeChat struct {
	msg        *data.Message
	conv       *data.Conversation
	err        error
	gotContent string
}

func (f *fakeChat) SendMessage(ctx context.Context, from, to bson.ObjectID, content string, subject *bson.ObjectID) (*data.Message, *data.Conversation, error) {
	f.gotContent = content
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.msg, f.conv, nil
}

func (f *fakeChat) History(ctx context.Context, a, b bson.ObjectID, limit int64) ([]*data.Message, *data.Conversation, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return []*data.Message{f.msg}, f.conv, nil
}

func (f *fakeChat) MarkRead(ctx context.Context, msgID, reader bson.ObjectID) (*data.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msg, nil
}

func (f *fakeChat) RecentConversations(ctx context.Context, user bson.ObjectID, limit int64) ([]*data.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*data.Conversation{f.conv}, nil
}

type fakeRelay struct {
	messages  []relay.MessageEvent
	presences []relay.PresenceEvent
	err       error
}

func (f *fakeRelay) PublishMessage(ctx context.Context, ev relay.MessageEvent) error {
	f.messages = append(f.messages, ev)
	return f.err
}

func (f *fakeRelay) PublishPresence(ctx context.Context, ev relay.PresenceEvent) error {
	f.presences = append(f.presences, ev)
	return f.err
}

// ---- helpers ---------------------------------------------------------

const testSecret = "handler-test-secret"

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.Routes(r, nil)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func bearerFor(t *testing.T, jwtMgr *auth.JWTManager, id bson.ObjectID) map[string]string {
	t.Helper()
	token, _, err := jwtMgr.GenerateToken(id, "caller@example.com")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

// ---- dons ------------------------------------------------------------

func TestCreateDon_LocationValidation(t *testing.T) {
	// real store with nil collection: validation short-circuits before
	// any DB access
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(data.NewDonsStore(nil), &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	owner := bson.NewObjectID().Hex()

	// wrong coordinate arity
	w, body := doJSON(t, r, http.MethodPost, "/dons",
		`{"title":"t","description":"d","user":"`+owner+`","location":{"type":"Point","coordinates":[2.35]}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["result"])

	// location is a plain string, not a GeoJSON object
	w, body = doJSON(t, r, http.MethodPost, "/dons",
		`{"title":"t","description":"d","user":"`+owner+`","location":"abc"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["result"])

	// valid GeoJSON point passes validation (and the nil collection is
	// never reached in the failing cases above)
	w, body = doJSON(t, r, http.MethodPost, "/dons",
		`{"title":"t","description":"d","user":"not-an-id","location":{"type":"Point","coordinates":[2.35,48.85]}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "identifier")
}

func TestCreateDon_Success(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	owner := bson.NewObjectID().Hex()
	w, body := doJSON(t, r, http.MethodPost, "/dons",
		`{"title":"tomates","description":"du balcon","user":"`+owner+`","location":{"type":"Point","coordinates":[2.35,48.85]}}`, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["result"])
	require.NotNil(t, body["don"])
}

func TestListDons_ObserverCoordinates(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	dons := &fakeDons{dons: []*data.Don{{Title: "a"}}}
	h := New(dons, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	// without coordinates: no observer reaches the store
	w, _ := doJSON(t, r, http.MethodGet, "/dons", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, dons.lastObserver)

	// with coordinates: observer built longitude-first
	w, _ = doJSON(t, r, http.MethodGet, "/dons?lat=48.8566&lng=2.3522", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, dons.lastObserver)
	assert.Equal(t, 2.3522, dons.lastObserver.Lng())
	assert.Equal(t, 48.8566, dons.lastObserver.Lat())

	// half a coordinate pair is a validation failure
	w, body := doJSON(t, r, http.MethodGet, "/dons?lat=48.8566", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["result"])
}

func TestNearDons(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	dons := &fakeDons{}
	h := New(dons, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	// missing coordinates
	w, _ := doJSON(t, r, http.MethodGet, "/dons/near", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// valid request threads point and radius through to the store
	w, _ = doJSON(t, r, http.MethodGet, "/dons/near?lng=2.35&lat=48.85&maxDistance=2000", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, dons.lastNearPt)
	assert.Equal(t, 2.35, dons.lastNearPt.Lng())
	assert.Equal(t, 2000, dons.lastNearMax)
}

func TestGetDon_MalformedID(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	// malformed identifiers surface as internal failures, not 404s
	w, body := doJSON(t, r, http.MethodGet, "/dons/not-a-hex-id", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, body["result"])
}

func TestGetDon_NotFound(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{err: data.ErrNotFound}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	w, _ := doJSON(t, r, http.MethodGet, "/dons/"+bson.NewObjectID().Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---- favorites -------------------------------------------------------

func TestGetFavorites_UnknownUserIsNotFound(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	w, body := doJSON(t, r, http.MethodGet, "/favorites/"+bson.NewObjectID().Hex(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["result"])
	// a missing user must never read as an empty favorites list
	assert.Nil(t, body["favorites"])
}

func TestFavorites_AddAndList(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	user := &data.User{ID: bson.NewObjectID(), Token: "tok"}
	users := &fakeUsers{user: user}
	h := New(&fakeDons{}, users, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	donID := bson.NewObjectID().Hex()
	w, body := doJSON(t, r, http.MethodPost, "/favorites/"+user.ID.Hex(),
		`{"donId":"`+donID+`"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["result"])

	w, body = doJSON(t, r, http.MethodGet, "/favorites/"+user.ID.Hex(), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	favs, ok := body["favorites"].([]any)
	require.True(t, ok)
	assert.Len(t, favs, 1)
}

// ---- chat ------------------------------------------------------------

func TestSendMessage_RequiresAuth(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	w, _ := doJSON(t, r, http.MethodPost, "/chat/message", `{"to":"x","content":"hi"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/chat/message", `{"to":"x","content":"hi"}`,
		map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessage_StoresThenBroadcasts(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)

	sender := bson.NewObjectID()
	recipient := &data.User{ID: bson.NewObjectID(), Token: "tok"}
	convID := bson.NewObjectID()
	msg := &data.Message{
		ID:             bson.NewObjectID(),
		From:           sender,
		To:             recipient.ID,
		Content:        "des pommes ?",
		ConversationID: convID,
		Date:           time.Now(),
	}
	chat := &fakeChat{msg: msg, conv: &data.Conversation{ID: convID}}
	rl := &fakeRelay{}
	h := New(&fakeDons{}, &fakeUsers{user: recipient}, chat, rl, jwtMgr)
	r := newRouter(h)

	w, body := doJSON(t, r, http.MethodPost, "/chat/message",
		`{"to":"`+recipient.ID.Hex()+`","content":"des pommes ?"}`,
		bearerFor(t, jwtMgr, sender))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["result"])
	assert.Equal(t, convID.Hex(), body["conversationId"])

	// broadcast happened on the conversation channel payload
	require.Len(t, rl.messages, 1)
	assert.Equal(t, msg.ID.Hex(), rl.messages[0].MessageID)
	assert.Equal(t, convID.Hex(), rl.messages[0].ConversationID)
}

func TestSendMessage_StoresRawContentBroadcastsEscaped(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)

	// exactly at the length limit, full of characters whose HTML escapes
	// are several runes long; escaping must never count against the limit
	raw := strings.Repeat("<&", data.MaxMessageLength/2)

	sender := bson.NewObjectID()
	recipient := &data.User{ID: bson.NewObjectID(), Token: "tok"}
	convID := bson.NewObjectID()
	chat := &fakeChat{
		msg:  &data.Message{ID: bson.NewObjectID(), Content: raw, ConversationID: convID},
		conv: &data.Conversation{ID: convID},
	}
	rl := &fakeRelay{}
	h := New(&fakeDons{}, &fakeUsers{user: recipient}, chat, rl, jwtMgr)
	r := newRouter(h)

	payload, err := json.Marshal(gin.H{"to": recipient.ID.Hex(), "content": raw})
	require.NoError(t, err)

	w, _ := doJSON(t, r, http.MethodPost, "/chat/message", string(payload),
		bearerFor(t, jwtMgr, sender))
	assert.Equal(t, http.StatusCreated, w.Code)

	// the store sees the sender's text untouched
	assert.Equal(t, raw, chat.gotContent)

	// subscribers that render the payload get the escaped form
	require.Len(t, rl.messages, 1)
	assert.Equal(t, html.EscapeString(raw), rl.messages[0].Content)
}

func TestSendMessage_RelayFailureDoesNotFailRequest(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)

	sender := bson.NewObjectID()
	recipient := &data.User{ID: bson.NewObjectID(), Token: "tok"}
	convID := bson.NewObjectID()
	chat := &fakeChat{
		msg:  &data.Message{ID: bson.NewObjectID(), ConversationID: convID},
		conv: &data.Conversation{ID: convID},
	}
	rl := &fakeRelay{err: assert.AnError}
	h := New(&fakeDons{}, &fakeUsers{user: recipient}, chat, rl, jwtMgr)
	r := newRouter(h)

	w, body := doJSON(t, r, http.MethodPost, "/chat/message",
		`{"to":"`+recipient.ID.Hex()+`","content":"hi"}`,
		bearerFor(t, jwtMgr, sender))

	// the message is durable before broadcast; a broken broker must not
	// surface to the sender
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["result"])
}

func TestSendMessage_UnknownRecipient(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	w, _ := doJSON(t, r, http.MethodPost, "/chat/message",
		`{"to":"`+bson.NewObjectID().Hex()+`","content":"hi"}`,
		bearerFor(t, jwtMgr, bson.NewObjectID()))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinAndLeaveChat(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	user := &data.User{ID: bson.NewObjectID(), Token: "session-tok"}
	users := &fakeUsers{user: user}
	rl := &fakeRelay{}
	h := New(&fakeDons{}, users, &fakeChat{}, rl, jwtMgr)
	r := newRouter(h)

	w, body := doJSON(t, r, http.MethodPut, "/chat/users/session-tok", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["result"])
	assert.True(t, users.presence["session-tok"])

	w, _ = doJSON(t, r, http.MethodDelete, "/chat/users/session-tok", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, users.presence["session-tok"])

	require.Len(t, rl.presences, 2)
	assert.Equal(t, "join", rl.presences[0].Event)
	assert.Equal(t, "leave", rl.presences[1].Event)

	// unknown token is a not-found, and no event goes out
	w, _ = doJSON(t, r, http.MethodPut, "/chat/users/who", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, rl.presences, 2)
}

// ---- users -----------------------------------------------------------

func TestSignup(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	h := New(&fakeDons{}, &fakeUsers{}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	// missing fields
	w, _ := doJSON(t, r, http.MethodPost, "/users/signup", `{"email":"a@b.fr"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// success returns both a session token and a JWT
	w, body := doJSON(t, r, http.MethodPost, "/users/signup",
		`{"email":"a@b.fr","password":"secret"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["result"])
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["jwt"])

	// duplicate email
	h2 := New(&fakeDons{}, &fakeUsers{err: data.ErrUserExists}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r2 := newRouter(h2)
	w, body = doJSON(t, r2, http.MethodPost, "/users/signup",
		`{"email":"a@b.fr","password":"secret"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "user already exists", body["error"])
}

func TestSignin(t *testing.T) {
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)

	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	user := &data.User{ID: bson.NewObjectID(), Email: "a@b.fr", Password: hash, Token: "tok"}
	h := New(&fakeDons{}, &fakeUsers{user: user}, &fakeChat{}, &fakeRelay{}, jwtMgr)
	r := newRouter(h)

	// wrong password
	w, _ := doJSON(t, r, http.MethodPost, "/users/signin",
		`{"email":"a@b.fr","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// correct credentials
	w, body := doJSON(t, r, http.MethodPost, "/users/signin",
		`{"email":"a@b.fr","password":"secret"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", body["token"])
	assert.NotEmpty(t, body["jwt"])
}
