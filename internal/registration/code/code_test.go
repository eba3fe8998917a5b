package code

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"enroll/internal/registration/models"
)

type CodeSuite struct {
	suite.Suite
	manager *Manager
	now     time.Time
}

func (s *CodeSuite) SetupTest() {
	manager, err := NewManager(6, 10*time.Minute)
	require.NoError(s.T(), err)
	s.manager = manager
	s.now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestCodeSuite(t *testing.T) {
	suite.Run(t, new(CodeSuite))
}

func (s *CodeSuite) TestNewManager_ValidatesShape() {
	_, err := NewManager(3, time.Minute)
	assert.Error(s.T(), err, "too short")

	_, err = NewManager(11, time.Minute)
	assert.Error(s.T(), err, "too long")

	_, err = NewManager(6, 0)
	assert.Error(s.T(), err, "zero expiry")
}

func (s *CodeSuite) TestGenerate_ProducesDigitsOfConfiguredLength() {
	for i := 0; i < 50; i++ {
		code, err := s.manager.Generate()
		require.NoError(s.T(), err)
		require.Len(s.T(), code, 6)
		for _, r := range code {
			require.True(s.T(), r >= '0' && r <= '9', "code %q contains non-digit", code)
		}
	}
}

func (s *CodeSuite) TestAssignAndCheck() {
	sess := &models.Session{}
	require.NoError(s.T(), s.manager.Assign(sess, "123456", s.now))

	assert.NotEmpty(s.T(), sess.CodeHash)
	assert.NotEmpty(s.T(), sess.CodeSalt)
	assert.Equal(s.T(), s.now.Add(10*time.Minute), sess.CodeExpiry)

	assert.True(s.T(), s.manager.Check(sess, "123456"))
	assert.False(s.T(), s.manager.Check(sess, "123457"))
	assert.False(s.T(), s.manager.Check(sess, ""))
}

func (s *CodeSuite) TestAssign_ReplacesPreviousCode() {
	sess := &models.Session{}
	require.NoError(s.T(), s.manager.Assign(sess, "111111", s.now))
	require.NoError(s.T(), s.manager.Assign(sess, "222222", s.now))

	assert.False(s.T(), s.manager.Check(sess, "111111"), "old code must stop matching")
	assert.True(s.T(), s.manager.Check(sess, "222222"))
}

func (s *CodeSuite) TestCheck_SessionWithoutCode() {
	sess := &models.Session{}
	assert.False(s.T(), s.manager.Check(sess, "123456"))
}

func (s *CodeSuite) TestAssign_SaltsDiffer() {
	a := &models.Session{}
	b := &models.Session{}
	require.NoError(s.T(), s.manager.Assign(a, "123456", s.now))
	require.NoError(s.T(), s.manager.Assign(b, "123456", s.now))

	assert.NotEqual(s.T(), a.CodeSalt, b.CodeSalt)
	assert.NotEqual(s.T(), a.CodeHash, b.CodeHash, "same code must hash differently per session")
}
