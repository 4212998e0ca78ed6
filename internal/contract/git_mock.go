package contract

import (
	"context"

	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/mock"
)

// MockGitClient is a mock implementation of GitClient for testing.
type MockGitClient struct {
	mock.Mock
}

var _ GitClient = &MockGitClient{} // Compile-time check

// Run implements the GitClient interface.
func (m *MockGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	mockArgs := []any{ctx, repoPath}
	for _, arg := range args {
		mockArgs = append(mockArgs, arg)
	}
	ret := m.Called(mockArgs...)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// ResolveRef implements the GitClient interface.
func (m *MockGitClient) ResolveRef(ctx context.Context, repoPath string, ref string) (string, error) {
	ret := m.Called(ctx, repoPath, ref)
	return ret.String(0), ret.Error(1)
}

// Ancestors implements the GitClient interface.
func (m *MockGitClient) Ancestors(ctx context.Context, repoPath string, ref string, limit int) ([]schema.CommitInfo, error) {
	ret := m.Called(ctx, repoPath, ref, limit)
	commits, _ := ret.Get(0).([]schema.CommitInfo)
	return commits, ret.Error(1)
}

// CommitsInRange implements the GitClient interface.
func (m *MockGitClient) CommitsInRange(ctx context.Context, repoPath string, from, to string) ([]string, error) {
	ret := m.Called(ctx, repoPath, from, to)
	commits, _ := ret.Get(0).([]string)
	return commits, ret.Error(1)
}

// CommitMessage implements the GitClient interface.
func (m *MockGitClient) CommitMessage(ctx context.Context, repoPath string, commit string) (string, error) {
	ret := m.Called(ctx, repoPath, commit)
	return ret.String(0), ret.Error(1)
}

// Fetch implements the GitClient interface.
func (m *MockGitClient) Fetch(ctx context.Context, repoPath string, args ...string) error {
	mockArgs := []any{ctx, repoPath}
	for _, arg := range args {
		mockArgs = append(mockArgs, arg)
	}
	return m.Called(mockArgs...).Error(0)
}

// SetBranch implements the GitClient interface.
func (m *MockGitClient) SetBranch(ctx context.Context, repoPath string, branch, target string) error {
	return m.Called(ctx, repoPath, branch, target).Error(0)
}

// StaticLister is a SubtestLister backed by a fixed map, for tests.
type StaticLister map[string][]string

// ListSubtests implements the SubtestLister interface.
func (s StaticLister) ListSubtests(_ context.Context, test string) ([]string, error) {
	return s[test], nil
}
