package ws

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// ========== MockPageService ==========
// 实现 PageService 接口，用于 Hub 和 Room 的单元测试

type MockPageService struct {
	mock.Mock

	mu    sync.Mutex
	saved [][]byte // 每次 SavePageState 收到的文档，按调用顺序
}

func (m *MockPageService) GetPageState(pageID string) ([]byte, int64, error) {
	args := m.Called(pageID)
	// 处理 nil 情况
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]byte), args.Get(1).(int64), args.Error(2)
}

func (m *MockPageService) SavePageState(pageID string, state []byte, oldVersion, newVersion int64) error {
	args := m.Called(pageID, state, oldVersion, newVersion)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.saved = append(m.saved, state)
		m.mu.Unlock()
	}
	return args.Error(0)
}

// lastSaved 最近一次成功保存的文档
func (m *MockPageService) lastSaved() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}
