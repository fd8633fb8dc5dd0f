package store

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) CreateIdentity(name string) (Identity, error) {
	args := m.Called(name)
	return args.Get(0).(Identity), args.Error(1)
}

func (m *MockRepository) GetIdentity(name string) (Identity, error) {
	args := m.Called(name)
	return args.Get(0).(Identity), args.Error(1)
}

func (m *MockRepository) IdentityExists(name string) bool {
	args := m.Called(name)
	return args.Bool(0)
}

func (m *MockRepository) SetCurrentRoom(name string, roomId *string) error {
	args := m.Called(name, roomId)
	return args.Error(0)
}

func (m *MockRepository) ClearRoomPointers(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}

func (m *MockRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockRepository) GetRoom(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}

func (m *MockRepository) DeleteRoom(externalId string) error {
	args := m.Called(externalId)
	return args.Error(0)
}

func (m *MockRepository) AppendMessage(params AppendMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) ListMessages(roomId string) ([]Message, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockRepository) LastMessages(roomId string, n int) ([]Message, error) {
	args := m.Called(roomId, n)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockRepository) DeleteMessages(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
