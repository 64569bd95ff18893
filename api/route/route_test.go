package route

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pagebuilder-go-server/api/controller"
	"pagebuilder-go-server/domain/entity"
	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/template"
	"pagebuilder-go-server/internal/ws"
	"pagebuilder-go-server/usecase"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// ========== 路由集成测试 ==========
// 走完整的 gin 路由 + 认证中间件 + 控制器 + UseCase，仓库层用 mock

type mockPageRepo struct{ mock.Mock }

func (m *mockPageRepo) GetByPageID(pageID string) (*entity.Page, error) {
	args := m.Called(pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Page), args.Error(1)
}

func (m *mockPageRepo) PageExists(pageID string) (bool, error) {
	args := m.Called(pageID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPageRepo) Create(p *entity.Page) error {
	return m.Called(p).Error(0)
}

func (m *mockPageRepo) UpdateSchema(pageID string, schema []byte, oldVersion, newVersion int64) error {
	return m.Called(pageID, schema, oldVersion, newVersion).Error(0)
}

func (m *mockPageRepo) OverwriteSchema(pageID string, schema []byte) (int64, error) {
	args := m.Called(pageID, schema)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPageRepo) Delete(pageID string) error {
	return m.Called(pageID).Error(0)
}

func (m *mockPageRepo) GetPageState(pageID string) ([]byte, int64, error) {
	args := m.Called(pageID)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).(int64), args.Error(2)
}

func (m *mockPageRepo) SavePageState(pageID string, state []byte, oldVersion, newVersion int64) error {
	return m.Called(pageID, state, oldVersion, newVersion).Error(0)
}

type mockVersionRepo struct{ mock.Mock }

func (m *mockVersionRepo) Create(v *entity.PageVersion) error {
	return m.Called(v).Error(0)
}

func (m *mockVersionRepo) ListByPageID(pageID string) ([]entity.PageVersion, error) {
	args := m.Called(pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.PageVersion), args.Error(1)
}

func (m *mockVersionRepo) Get(pageID, versionID string) (*entity.PageVersion, error) {
	args := m.Called(pageID, versionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PageVersion), args.Error(1)
}

func (m *mockVersionRepo) DeleteByPageID(pageID string) error {
	return m.Called(pageID).Error(0)
}

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) Upsert(u *entity.User) error { return m.Called(u).Error(0) }

func (m *mockUserRepo) GetByID(userID string) (*entity.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *mockUserRepo) Delete(userID string) error { return m.Called(userID).Error(0) }

// fakeVerifier token 即用户 ID，"bad" 视为无效
func fakeVerifier(_ context.Context, token string) (string, error) {
	if token == "bad" {
		return "", errors.New("token expired")
	}
	return token, nil
}

type server struct {
	router   *gin.Engine
	pages    *mockPageRepo
	versions *mockVersionRepo
	users    *mockUserRepo
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := template.Load("")
	require.NoError(t, err)

	s := &server{pages: new(mockPageRepo), versions: new(mockVersionRepo), users: new(mockUserRepo)}
	users := s.users
	log := zerolog.Nop()

	hub := ws.NewHub(s.pages, log)
	t.Cleanup(hub.Shutdown)
	uc := usecase.NewPageUseCase(s.pages, s.versions, hub, catalog, log)

	s.router = gin.New()
	Setup(s.router, &Dependencies{
		PageController:    controller.NewPageController(uc, log),
		WSHandler:         controller.NewWSHandler(hub, users, fakeVerifier, nil, log),
		WebhookController: controller.NewWebhookController(users, "", log),
		Verifier:          fakeVerifier,
	})
	return s
}

func (s *server) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const emptyDoc = `{"id":"p1","templateId":"blank","components":[]}`

func TestHealth(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pagebuilder-go-server")
}

func TestAuth(t *testing.T) {
	s := newServer(t)

	testCases := []struct {
		name  string
		token string
	}{
		{"缺少 Authorization", ""},
		{"Token 无效", "bad"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/pages/p1", tc.token, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
	s.pages.AssertNotCalled(t, "GetByPageID", mock.Anything)
}

func TestGetPage(t *testing.T) {
	s := newServer(t)
	s.pages.On("GetByPageID", "p1").Return(&entity.Page{PageID: "p1", Schema: datatypes.JSON(emptyDoc), Version: 3}, nil)
	s.pages.On("GetByPageID", "missing").Return(nil, nil)

	w := s.do(http.MethodGet, "/api/pages/p1", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))
	assert.JSONEq(t, emptyDoc, w.Body.String())

	w = s.do(http.MethodGet, "/api/pages/missing", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSavePage(t *testing.T) {
	t.Run("If-Match 匹配", func(t *testing.T) {
		s := newServer(t)
		s.pages.On("UpdateSchema", "p1", mock.Anything, int64(3), int64(4)).Return(nil).Once()

		w := s.do(http.MethodPut, "/api/pages/p1", "alice", emptyDoc, "If-Match", `"3"`)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, `"4"`, w.Header().Get("ETag"))
		var resp controller.SaveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, int64(4), resp.Version)
	})

	t.Run("If-Match 过期", func(t *testing.T) {
		s := newServer(t)
		s.pages.On("UpdateSchema", "p1", mock.Anything, int64(2), int64(3)).Return(domainErrors.ErrOptimisticLock).Once()
		s.pages.On("PageExists", "p1").Return(true, nil).Once()

		w := s.do(http.MethodPut, "/api/pages/p1", "alice", emptyDoc, "If-Match", `"2"`)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("无 If-Match 覆盖写", func(t *testing.T) {
		s := newServer(t)
		s.pages.On("OverwriteSchema", "p1", mock.Anything).Return(int64(8), nil).Once()

		w := s.do(http.MethodPut, "/api/pages/p1", "alice", emptyDoc)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `"8"`, w.Header().Get("ETag"))
	})

	testCases := []struct {
		name   string
		body   string
		header string
		code   int
	}{
		{"If-Match 非数字", emptyDoc, "abc", http.StatusBadRequest},
		{"空 body", "", "", http.StatusBadRequest},
		{"非法 JSON", "{", "", http.StatusBadRequest},
		{"未知组件类型", `{"id":"p1","components":[{"id":"x","type":"VideoComponent"}]}`, "", http.StatusBadRequest},
		{"id 与路径不一致", `{"id":"other","components":[]}`, "", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			var headers []string
			if tc.header != "" {
				headers = []string{"If-Match", tc.header}
			}

			w := s.do(http.MethodPut, "/api/pages/p1", "alice", tc.body, headers...)

			assert.Equal(t, tc.code, w.Code, w.Body.String())
			s.pages.AssertNotCalled(t, "OverwriteSchema", mock.Anything, mock.Anything)
		})
	}
}

func TestCreatePage(t *testing.T) {
	s := newServer(t)
	s.pages.On("Create", mock.MatchedBy(func(p *entity.Page) bool {
		return p.PageID == "new" && p.CreatorID == "alice" && p.Version == 1
	})).Return(nil).Once()

	w := s.do(http.MethodPost, "/api/pages", "alice", `{"pageId":"new","templateId":"landing"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	assert.Contains(t, w.Body.String(), `"templateId":"landing"`)

	w = s.do(http.MethodPost, "/api/pages", "alice", `{"templateId":"landing"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/pages", "alice", `{"pageId":"x","templateId":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletePage_NotCreator(t *testing.T) {
	s := newServer(t)
	s.pages.On("GetByPageID", "p1").Return(&entity.Page{PageID: "p1", CreatorID: "alice"}, nil)

	w := s.do(http.MethodDelete, "/api/pages/p1", "bob", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
	s.pages.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestVersions(t *testing.T) {
	s := newServer(t)
	s.pages.On("PageExists", "p1").Return(true, nil)
	s.pages.On("PageExists", "missing").Return(false, nil)
	s.versions.On("ListByPageID", "p1").Return([]entity.PageVersion{{ID: "v-1", PageID: "p1", Label: "v3", PageVersion: 3}}, nil)
	s.versions.On("Get", "p1", "v-1").Return(&entity.PageVersion{ID: "v-1", PageID: "p1", Schema: datatypes.JSON(emptyDoc), PageVersion: 3}, nil)
	s.versions.On("Get", "p1", "v-2").Return(nil, nil)

	w := s.do(http.MethodGet, "/api/pages/p1/versions", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pageVersion":3`)

	w = s.do(http.MethodGet, "/api/pages/missing/versions", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/pages/p1/versions/v-1", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))
	assert.JSONEq(t, emptyDoc, w.Body.String())

	w = s.do(http.MethodGet, "/api/pages/p1/versions/v-2", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateVersion_EmptyBody(t *testing.T) {
	s := newServer(t)
	s.pages.On("GetByPageID", "p1").Return(&entity.Page{PageID: "p1", Schema: datatypes.JSON(emptyDoc), Version: 5}, nil)
	s.versions.On("Create", mock.MatchedBy(func(v *entity.PageVersion) bool {
		return v.Label == "v5" && v.PageVersion == 5 && v.CreatorID == "alice"
	})).Return(nil).Once()

	w := s.do(http.MethodPost, "/api/pages/p1/versions", "alice", "")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"label":"v5"`)
	s.versions.AssertExpectations(t)
}

func TestListTemplates(t *testing.T) {
	s := newServer(t)

	w := s.do(http.MethodGet, "/api/templates", "alice", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"landing"`)
}

func TestClerkWebhook(t *testing.T) {
	s := newServer(t)
	s.users.On("Upsert", mock.MatchedBy(func(u *entity.User) bool {
		return u.ID == "user_1" && u.Name == "Ada Lovelace" && u.Email == "ada@example.com"
	})).Return(nil).Once()
	s.users.On("Delete", "user_2").Return(nil).Once()

	created := `{"type":"user.created","data":{"id":"user_1","first_name":"Ada","last_name":"Lovelace","email_addresses":[{"email_address":"ada@example.com"}]}}`
	w := s.do(http.MethodPost, "/webhook/clerk", "", created)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/webhook/clerk", "", `{"type":"user.deleted","data":{"id":"user_2"}}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/webhook/clerk", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.users.AssertExpectations(t)
}

func TestWS_HandshakeErrors(t *testing.T) {
	s := newServer(t)
	s.pages.On("GetPageState", "missing").Return(nil, int64(0), domainErrors.ErrPageNotFound)

	testCases := []struct {
		name  string
		query string
		code  int
	}{
		{"缺少 pageId", "?token=alice", http.StatusBadRequest},
		{"缺少 token", "?pageId=p1", http.StatusUnauthorized},
		{"token 无效", "?pageId=p1&token=bad", http.StatusUnauthorized},
		{"页面不存在", "?pageId=missing&token=alice", http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/ws"+tc.query, "", "")
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

// TestWS_SyncAndOp 真实连接：收到 sync 后发 add 操作，期望事件广播和 ack
func TestWS_SyncAndOp(t *testing.T) {
	s := newServer(t)
	s.pages.On("GetPageState", "p1").Return([]byte(emptyDoc), int64(1), nil)
	s.pages.On("SavePageState", "p1", mock.Anything, int64(1), mock.Anything).Return(nil).Maybe()
	s.users.On("GetByID", "alice").Return(&entity.User{ID: "alice", Name: "Alice"}, nil)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?pageId=p1&token=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() ws.WSMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg ws.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	syncMsg := read()
	require.Equal(t, ws.TypeSync, syncMsg.Type)
	var payload ws.SyncPayload
	require.NoError(t, json.Unmarshal(syncMsg.Payload, &payload))
	assert.Equal(t, int64(1), payload.Version)
	// 房间加载时补齐缺失的 createdAt / updatedAt
	var synced map[string]any
	require.NoError(t, json.Unmarshal(payload.Page, &synced))
	assert.NotEmpty(t, synced["createdAt"])
	assert.Equal(t, synced["createdAt"], synced["updatedAt"])
	delete(synced, "createdAt")
	delete(synced, "updatedAt")
	stripped, err := json.Marshal(synced)
	require.NoError(t, err)
	assert.JSONEq(t, emptyDoc, string(stripped))

	op, err := json.Marshal(ws.OpPayload{Op: ws.OpAdd, ComponentType: "TextComponent"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ws.WSMessage{Type: ws.TypeOp, Payload: op}))

	var types []ws.MessageType
	for len(types) < 10 {
		msg := read()
		types = append(types, msg.Type)
		if msg.Type == ws.TypeAck {
			break
		}
	}
	assert.Contains(t, types, ws.TypeEvent)
	assert.Equal(t, ws.TypeAck, types[len(types)-1])
}
