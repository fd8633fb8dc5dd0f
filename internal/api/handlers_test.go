package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/jcowley/roomcast/internal/chat"
	"github.com/jcowley/roomcast/internal/config"
	"github.com/jcowley/roomcast/internal/server"
	"github.com/jcowley/roomcast/internal/stats"
	"github.com/jcowley/roomcast/internal/store"
	"github.com/jcowley/roomcast/internal/testutil"
	"github.com/jcowley/roomcast/internal/types"
)

func newTestApp(t *testing.T, db *store.MockRepository, su *stats.MockStatsUpdater) *App {
	su.On("RegisterMetric", mock.Anything).Times(3)

	logger := testutil.TestLogger(t)
	svc := chat.NewService(logger, db, su, 10)
	cs := server.NewChatServer(logger, svc)

	return NewApp(http.NewServeMux(), logger, svc, cs, &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: []byte("test-signing-key"),
	})
}

// findCookie returns the named cookie from the recorded response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	data, err := json.Marshal(v)
	assert.NoError(t, err)
	return bytes.NewBuffer(data)
}

func authedRequest(method, target string, body *bytes.Buffer, identity string) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(WithIdentity(req.Context(), identity))
}

func Test_login(t *testing.T) {
	t.Run("registers new identity and sets cookie", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("IdentityExists", "Alice").Return(false).Once()
		db.On("CreateIdentity", "Alice").Return(store.Identity{Id: 1, Name: "Alice"}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{Username: "Alice"}))

		app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		cookie := findCookie(rr, tokenCookieKey)
		assert.NotNil(t, cookie, "expected token cookie to be set")
		assert.NotEmpty(t, cookie.Value)

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "Alice", user.Name)
	})

	t.Run("invalid json body", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("invalid json"))

		app.login(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})

	t.Run("invalid name", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{Username: "a"}))

		app.login(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
		assert.Nil(t, findCookie(rr, tokenCookieKey), "expected no cookie on failed login")
	})
}

func Test_session(t *testing.T) {
	t.Run("returns current identity", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		roomId := "room-1"
		db.On("GetIdentity", "Alice").Return(store.Identity{Id: 1, Name: "Alice", CurrentRoom: &roomId}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.session(rr, authedRequest(http.MethodGet, "/api/auth/session", nil, "Alice"))

		assert.Equal(t, http.StatusOK, rr.Code)

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "Alice", user.Name)
		assert.Equal(t, "room-1", user.CurrentRoom)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)

		app.session(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func Test_logout(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	app := newTestApp(t, db, su)
	rr := httptest.NewRecorder()

	app.logout(rr, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	assert.NotNil(t, cookie, "expected cookie to be overwritten")
	assert.Empty(t, cookie.Value, "expected cookie value to be cleared")
}

func Test_createRoom(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", "ActiveRooms").Once()

		db.On("GetIdentity", "Alice").Return(store.Identity{Id: 1, Name: "Alice"}, nil).Once()
		db.On("CreateRoom", mock.Anything).Return(store.Room{ExternalId: "room-1", Name: "general", Creator: "Alice"}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/rooms", jsonBody(t, CreateRoomRequest{Name: "general"}), "Alice")

		app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, "room-1", room.Id)
		assert.Equal(t, "Alice", room.Creator)
	})

	t.Run("invalid name", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/rooms", jsonBody(t, CreateRoomRequest{Name: "ab"}), "Alice")

		app.createRoom(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_deleteRoom(t *testing.T) {
	t.Run("missing id", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.deleteRoom(rr, authedRequest(http.MethodDelete, "/api/rooms", nil, "Alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("not the creator", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1", Creator: "Alice"}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.deleteRoom(rr, authedRequest(http.MethodDelete, "/api/rooms?id=room-1", nil, "Bob"))
		assert.Equal(t, http.StatusForbidden, rr.Code, "expected 403 for non-creator")
	})

	t.Run("success", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Decr", "ActiveRooms").Once()

		db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1", Creator: "Alice"}, nil).Once()
		db.On("ClearRoomPointers", "room-1").Return(nil).Once()
		db.On("DeleteMessages", "room-1").Return(nil).Once()
		db.On("DeleteRoom", "room-1").Return(nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.deleteRoom(rr, authedRequest(http.MethodDelete, "/api/rooms?id=room-1", nil, "Alice"))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func Test_getRoom(t *testing.T) {
	t.Run("lists rooms without id", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("ListRooms").Return([]store.Room{
			{ExternalId: "room-1", Name: "general"},
			{ExternalId: "room-2", Name: "random"},
		}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.getRoom(rr, authedRequest(http.MethodGet, "/api/rooms", nil, "Alice"))
		assert.Equal(t, http.StatusOK, rr.Code)

		var rooms []types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&rooms))
		assert.Len(t, rooms, 2)
	})

	t.Run("returns one room by id", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1", Name: "general"}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.getRoom(rr, authedRequest(http.MethodGet, "/api/rooms?id=room-1", nil, "Alice"))
		assert.Equal(t, http.StatusOK, rr.Code)

		var room types.Room
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, "room-1", room.Id)
	})

	t.Run("room not found", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("GetRoom", "missing").Return(store.Room{}, gorm.ErrRecordNotFound).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.getRoom(rr, authedRequest(http.MethodGet, "/api/rooms?id=missing", nil, "Alice"))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_joinRoom(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1", Name: "general"}, nil).Once()
	db.On("GetIdentity", "Alice").Return(store.Identity{Id: 1, Name: "Alice"}, nil).Once()
	db.On("SetCurrentRoom", "Alice", mock.Anything).Return(nil).Once()
	db.On("AppendMessage", mock.Anything).Return(store.Message{}, nil).Once()

	app := newTestApp(t, db, su)
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/rooms/join", jsonBody(t, RoomRequest{RoomId: "room-1"}), "Alice")

	app.joinRoom(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var room types.Room
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
	assert.Equal(t, "room-1", room.Id)
	assert.Len(t, room.Participants, 1, "expected the joiner in the participant list")
}

func Test_leaveRoom(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1"}, nil).Once()

	app := newTestApp(t, db, su)
	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/rooms/leave", jsonBody(t, RoomRequest{RoomId: "room-1"}), "Alice")

	app.leaveRoom(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code, "expected 409 when leaving a room the identity is not in")
}

func Test_sendMessage(t *testing.T) {
	t.Run("not a member", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1"}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/messages", jsonBody(t, SendMessageRequest{RoomId: "room-1", Content: "hello"}), "Alice")

		app.sendMessage(rr, req)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("empty content", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/messages", jsonBody(t, SendMessageRequest{RoomId: "room-1"}), "Alice")

		app.sendMessage(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_getMessages(t *testing.T) {
	t.Run("missing room id", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages", nil, "Alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?room_id=room-1&limit=x", nil, "Alice"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("success with limit", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)

		db.On("GetRoom", "room-1").Return(store.Room{ExternalId: "room-1"}, nil).Once()
		db.On("LastMessages", "room-1", 2).Return([]store.Message{
			{Id: "msg-1", RoomId: "room-1", SeqId: 4, Content: "a"},
			{Id: "msg-2", RoomId: "room-1", SeqId: 5, Content: "b"},
		}, nil).Once()

		app := newTestApp(t, db, su)
		rr := httptest.NewRecorder()

		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?room_id=room-1&limit=2", nil, "Alice"))
		assert.Equal(t, http.StatusOK, rr.Code)

		var msgs []types.Message
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msgs))
		assert.Len(t, msgs, 2)
		assert.Equal(t, 4, msgs[0].SeqId, "expected oldest-first ordering")
	})
}

func Test_serveWs_unauthenticated(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	app := newTestApp(t, db, su)
	rr := httptest.NewRecorder()

	app.serveWs(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
