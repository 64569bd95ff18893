package ws

import (
	"sync"
	"testing"
	"time"

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/page"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ========== Hub 单元测试 ==========
// 测试重点：GetOrCreateRoom 的并发安全性和缓存逻辑，以及房间的回收

func pageState(id string) []byte {
	return []byte(`{"id":"` + id + `","templateId":"blank","components":[]}`)
}

func newTestHub(mockService *MockPageService) *Hub {
	return NewHub(mockService, zerolog.Nop())
}

func TestHub_GetOrCreateRoom_CacheHit(t *testing.T) {
	// 第一次调用应该调用 PageService.GetPageState
	// 第二次调用同一 ID 应该直接返回内存中的 Room，不再调用 DB
	mockService := new(MockPageService)
	hub := newTestHub(mockService)

	mockService.On("GetPageState", "room-1").Return(pageState("room-1"), int64(1), nil).Once()

	room1, err := hub.GetOrCreateRoom("room-1")
	require.NoError(t, err)
	require.NotNil(t, room1)
	assert.Equal(t, "room-1", room1.ID)
	t.Cleanup(room1.Stop)

	room2, err := hub.GetOrCreateRoom("room-1")
	require.NoError(t, err)

	assert.Same(t, room1, room2)
	mockService.AssertNumberOfCalls(t, "GetPageState", 1)
}

func TestHub_GetOrCreateRoom_PageNotFound(t *testing.T) {
	// 当 PageService 返回 ErrPageNotFound 时，Hub 不应创建房间
	mockService := new(MockPageService)
	hub := newTestHub(mockService)

	mockService.On("GetPageState", "non-existent").Return(nil, int64(0), domainErrors.ErrPageNotFound)

	room, err := hub.GetOrCreateRoom("non-existent")

	assert.Nil(t, room)
	assert.ErrorIs(t, err, domainErrors.ErrPageNotFound)
	assert.Nil(t, hub.GetRoom("non-existent"))
	mockService.AssertExpectations(t)
}

func TestHub_GetOrCreateRoom_CorruptDocument(t *testing.T) {
	mockService := new(MockPageService)
	hub := newTestHub(mockService)

	mockService.On("GetPageState", "bad").
		Return([]byte(`{"id":"bad","components":[{"id":"x","type":"video","order":1,"data":{}}]}`), int64(2), nil)

	room, err := hub.GetOrCreateRoom("bad")

	assert.Nil(t, room)
	assert.ErrorIs(t, err, domainErrors.ErrUnknownComponentType)
	assert.Nil(t, hub.GetRoom("bad"))
}

func TestHub_GetOrCreateRoom_FillsMissingID(t *testing.T) {
	mockService := new(MockPageService)
	hub := newTestHub(mockService)

	mockService.On("GetPageState", "legacy").Return([]byte(`{"components":[]}`), int64(3), nil)

	room, err := hub.GetOrCreateRoom("legacy")
	require.NoError(t, err)
	t.Cleanup(room.Stop)

	snapshot, version := room.GetSnapshot()
	assert.Equal(t, int64(3), version)
	assert.Contains(t, string(snapshot), `"id":"legacy"`)
}

func TestHub_GetOrCreateRoom_ConcurrentAccess(t *testing.T) {
	// 10 个 Goroutine 同时请求同一个 Room ID
	// PageService.GetPageState 应该只被调用一次（验证双重检查锁）
	mockService := new(MockPageService)
	hub := newTestHub(mockService)

	mockService.On("GetPageState", "concurrent-room").Return(pageState("concurrent-room"), int64(1), nil).Once()

	const goroutines = 10
	var wg sync.WaitGroup
	rooms := make([]*Room, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rooms[idx], errs[idx] = hub.GetOrCreateRoom("concurrent-room")
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		assert.NoError(t, errs[i], "Goroutine %d should succeed", i)
		assert.Same(t, rooms[0], rooms[i], "All goroutines should get the same Room instance")
	}
	t.Cleanup(rooms[0].Stop)

	mockService.AssertNumberOfCalls(t, "GetPageState", 1)
}

func TestHub_GetRoom_ReadOnly(t *testing.T) {
	// 当房间不在内存中时，应返回 nil，不触发创建
	mockService := new(MockPageService)
	hub := newTestHub(mockService)

	assert.Nil(t, hub.GetRoom("non-existent"))
	mockService.AssertNotCalled(t, "GetPageState", mock.Anything)
}

func TestHub_StoppingRoomRejectsJoin(t *testing.T) {
	mockService := new(MockPageService)
	hub := newTestHub(mockService)
	mockService.On("GetPageState", "closing").Return(pageState("closing"), int64(1), nil).Once()

	room, err := hub.GetOrCreateRoom("closing")
	require.NoError(t, err)
	room.Stop()

	// 房间仍在目录中（等待 Hub 回收），读路径可用，加入被拒绝
	assert.Same(t, room, hub.GetRoom("closing"))
	_, err = hub.GetOrCreateRoom("closing")
	assert.ErrorIs(t, err, domainErrors.ErrRoomClosing)
}

func TestHub_IdleRoomIsReclaimed(t *testing.T) {
	mockService := new(MockPageService)
	mockService.On("GetPageState", "idle").Return(pageState("idle"), int64(1), nil)
	hub := newTestHub(mockService)
	go hub.Run()

	room, err := hub.GetOrCreateRoom("idle")
	require.NoError(t, err)

	client := newTestClient(room, "alice")
	require.NoError(t, room.Register(client))
	require.Equal(t, TypeSync, recv(t, client).Type)

	// 最后一个用户离开后房间被停止并移出目录
	room.Unregister(client)
	assert.Eventually(t, func() bool { return hub.GetRoom("idle") == nil }, time.Second, 10*time.Millisecond)
	assert.True(t, room.IsStopping())

	// 再次请求会重新加载
	again, err := hub.GetOrCreateRoom("idle")
	require.NoError(t, err)
	t.Cleanup(again.Stop)
	assert.NotSame(t, room, again)
	mockService.AssertNumberOfCalls(t, "GetPageState", 2)
}

func TestHub_CloseRoom(t *testing.T) {
	mockService := new(MockPageService)
	mockService.On("GetPageState", "doomed").Return(pageState("doomed"), int64(1), nil).Once()
	hub := newTestHub(mockService)

	room, err := hub.GetOrCreateRoom("doomed")
	require.NoError(t, err)
	client := newTestClient(room, "alice")
	require.NoError(t, room.Register(client))
	require.Equal(t, TypeSync, recv(t, client).Type)

	hub.CloseRoom("doomed")

	assert.Nil(t, hub.GetRoom("doomed"))
	msgs := waitClosed(t, client)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeError, msgs[0].Type)

	// 不存在的房间直接返回
	hub.CloseRoom("doomed")
}

func TestHub_Shutdown(t *testing.T) {
	mockService := new(MockPageService)
	mockService.On("GetPageState", mock.Anything).Return(pageState("any"), int64(1), nil)
	mockService.On("SavePageState", mock.Anything, mock.Anything, int64(1), int64(2)).Return(nil)
	hub := newTestHub(mockService)

	a, err := hub.GetOrCreateRoom("a")
	require.NoError(t, err)
	b, err := hub.GetOrCreateRoom("b")
	require.NoError(t, err)

	_, err = a.Apply(OpPayload{Op: OpAdd, ComponentType: page.TypeText}, nil)
	require.NoError(t, err)

	hub.Shutdown()

	assert.True(t, a.IsStopping())
	assert.True(t, b.IsStopping())
	assert.Nil(t, hub.GetRoom("a"))
	// 只有 a 有未持久化的修改
	mockService.AssertNumberOfCalls(t, "SavePageState", 1)
}
