package lending

import (
	"context"
	"sync/atomic"
	"testing"

	"book-circulation/core/database"
	"book-circulation/core/queue"
	"book-circulation/core/store"
	"book-circulation/core/utils"
	bookModels "book-circulation/feature/books/models"
	userModels "book-circulation/feature/users/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&bookModels.Book{}, &userModels.User{}))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

// seedBooks creates n available books and returns their ids.
func seedBooks(t *testing.T, db *gorm.DB, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = utils.NewID()
		require.NoError(t, db.Create(&bookModels.Book{ID: ids[i], Name: "Book", Author: "Author"}).Error)
	}
	return ids
}

func seedUser(t *testing.T, db *gorm.DB) string {
	t.Helper()
	id := utils.NewID()
	require.NoError(t, db.Create(&userModels.User{
		ID:           id,
		Email:        id + "@library.test",
		Username:     "reader",
		PasswordHash: "hash",
		PasswordSalt: "salt",
	}).Error)
	return id
}

func holdBook(t *testing.T, db *gorm.DB, bookID, holderID string) {
	t.Helper()
	require.NoError(t, db.Model(&bookModels.Book{}).Where("id = ?", bookID).Update("holder_id", holderID).Error)
}

func holderOf(t *testing.T, db *gorm.DB, bookID string) *string {
	t.Helper()
	var b bookModels.Book
	require.NoError(t, db.Where("id = ?", bookID).Take(&b).Error)
	return b.HolderID
}

type fixture struct {
	db         *gorm.DB
	controller *Controller
	worker     *Worker
	executor   *countingExecutor
	dispatcher *Dispatcher
	service    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupDB(t)
	log := zap.NewNop()
	controller := NewController(NewHoldStore(db), log)
	worker := NewWorker(controller, log)
	exec := &countingExecutor{Executor: queue.NewPool(4, worker.Handle, log)}
	t.Cleanup(func() { _ = exec.Close() })
	dispatcher := NewDispatcher(controller, exec, 0, log)
	service := NewService(dispatcher, controller, store.NewRepository[userModels.User](db), log)
	return &fixture{db: db, controller: controller, worker: worker, executor: exec, dispatcher: dispatcher, service: service}
}

// countingExecutor records how many tasks were submitted.
type countingExecutor struct {
	queue.Executor
	submitted atomic.Int64
}

func (e *countingExecutor) Submit(ctx context.Context, task queue.Task) (queue.Handle, error) {
	e.submitted.Add(1)
	return e.Executor.Submit(ctx, task)
}

// mockHoldStore is a testify mock of HoldStore.
type mockHoldStore struct {
	mock.Mock
}

func (m *mockHoldStore) Hold(ctx context.Context, itemID, holderID string) (bool, error) {
	args := m.Called(ctx, itemID, holderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockHoldStore) HoldMany(ctx context.Context, itemIDs []string, holderID string) (int64, error) {
	args := m.Called(ctx, itemIDs, holderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHoldStore) Unheld(ctx context.Context, itemIDs []string) ([]string, error) {
	args := m.Called(ctx, itemIDs)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHoldStore) Release(ctx context.Context, itemID, holderID string) (bool, error) {
	args := m.Called(ctx, itemID, holderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockHoldStore) Holder(ctx context.Context, itemID string) (*string, bool, error) {
	args := m.Called(ctx, itemID)
	holder, _ := args.Get(0).(*string)
	return holder, args.Bool(1), args.Error(2)
}

func (m *mockHoldStore) Transaction(_ context.Context, fn func(HoldStore) error) error {
	return fn(m)
}

// miscountingStore reports one more modified row than HoldMany actually wrote.
type miscountingStore struct {
	HoldStore
}

func (s miscountingStore) HoldMany(ctx context.Context, itemIDs []string, holderID string) (int64, error) {
	n, err := s.HoldStore.HoldMany(ctx, itemIDs, holderID)
	return n + 1, err
}

func (s miscountingStore) Transaction(ctx context.Context, fn func(HoldStore) error) error {
	return s.HoldStore.Transaction(ctx, func(tx HoldStore) error {
		return fn(miscountingStore{tx})
	})
}
