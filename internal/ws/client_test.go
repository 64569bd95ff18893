package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	domainErrors "pagebuilder-go-server/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Client 消息处理测试 ==========
// 事件循环不启动，直接从 broadcast 通道检查 Client 投递的消息

func nextQueued(t *testing.T, r *Room) *RoomBroadcast {
	t.Helper()
	select {
	case b := <-r.broadcast:
		return b
	default:
		t.Fatal("no queued message")
		return nil
	}
}

func opMessage(t *testing.T, op OpPayload) []byte {
	t.Helper()
	raw, err := json.Marshal(op)
	require.NoError(t, err)
	data, err := json.Marshal(WSMessage{Type: TypeOp, SenderID: "alice", Payload: raw})
	require.NoError(t, err)
	return data
}

func TestClient_HandleOp_AckToSender(t *testing.T) {
	room := newTestRoom(t, new(MockPageService))
	alice := newTestClient(room, "alice")

	alice.handleMessage(opMessage(t, OpPayload{Op: OpCardTitle, Version: 1, ComponentID: "card-1", Text: "Hi"}))

	// 先是广播的事件，再是给发送者的 ack
	event := nextQueued(t, room)
	assert.Nil(t, event.Target)
	assert.True(t, event.IsCritical)

	ack := nextQueued(t, room)
	assert.Same(t, alice, ack.Target)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(ack.Message, &msg))
	require.Equal(t, TypeAck, msg.Type)
	var payload AckPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, OpCardTitle, payload.Op)
	assert.Equal(t, int64(2), payload.Version)
}

func TestClient_HandleMessage_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		message []byte
		code    ErrorCode
	}{
		{"Not JSON", []byte(`{`), ErrOpInvalid},
		{"Unknown type", []byte(`{"type":"teleport"}`), ErrOpInvalid},
		{"Bad op payload", []byte(`{"type":"op","payload":{"op":"add","component":{"type":"video","data":{}}}}`), ErrOpInvalid},
		{"Version conflict", opMessage(t, OpPayload{Op: OpCardTitle, Version: 9, ComponentID: "card-1"}), ErrVersionConflict},
		{"Missing component", opMessage(t, OpPayload{Op: OpCardTitle, ComponentID: "ghost", Text: "x"}), ErrNotFound},
		{"Wrong variant", opMessage(t, OpPayload{Op: OpText, ComponentID: "card-1", Text: "x"}), ErrTypeMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			room := newTestRoom(t, new(MockPageService))
			alice := newTestClient(room, "alice")

			alice.handleMessage(tc.message)

			out := nextQueued(t, room)
			assert.Same(t, alice, out.Target)
			var msg WSMessage
			require.NoError(t, json.Unmarshal(out.Message, &msg))
			require.Equal(t, TypeError, msg.Type)
			var payload ErrorPayload
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			assert.Equal(t, tc.code, payload.Code)
			assert.Equal(t, int64(1), room.Version)
		})
	}
}

func TestClient_HandleMessage_PresenceRelay(t *testing.T) {
	room := newTestRoom(t, new(MockPageService))
	alice := newTestClient(room, "alice")

	for _, raw := range []string{
		`{"type":"cursor-move","senderId":"alice","payload":{"x":1,"y":2}}`,
		`{"type":"select","senderId":"alice","payload":{"componentId":"card-1"}}`,
	} {
		alice.handleMessage([]byte(raw))

		out := nextQueued(t, room)
		assert.Same(t, alice, out.Sender, "不回发给自己")
		assert.False(t, out.IsCritical)
		assert.JSONEq(t, raw, string(out.Message))
	}

	// 选中只是展示，不进入文档
	assert.Equal(t, int64(1), room.Version)
	assert.Empty(t, room.manager.SelectedComponentID())
}

func TestErrorCode(t *testing.T) {
	testCases := []struct {
		err  error
		code ErrorCode
	}{
		{&VersionConflictError{CurrentVersion: 2, ExpectedVersion: 1}, ErrVersionConflict},
		{&OpError{Reason: "bad"}, ErrOpInvalid},
		{domainErrors.NewValidationError("componentId", "is required"), ErrOpInvalid},
		{fmt.Errorf("wrapped: %w", &domainErrors.NotFoundError{Kind: "component", ID: "x"}), ErrNotFound},
		{&domainErrors.TypeMismatchError{ID: "x", Expected: "card", Actual: "text"}, ErrTypeMismatch},
		{errors.New("boom"), ErrInternalError},
	}

	for _, tc := range testCases {
		code, msg := errorCode(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}
