package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	dErrors "enroll/pkg/domain-errors"
)

type SessionSuite struct {
	suite.Suite
	now time.Time
}

func (s *SessionSuite) SetupTest() {
	s.now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) newSession() *Session {
	sess, err := NewSession("+15551234567", "alice", ChannelSMS, 3, s.now)
	require.NoError(s.T(), err)
	return sess
}

func (s *SessionSuite) TestNewSession_Defaults() {
	sess := s.newSession()

	assert.Equal(s.T(), StateCreated, sess.State)
	assert.Equal(s.T(), 3, sess.AttemptsRemaining)
	assert.NotEmpty(s.T(), sess.SessionID)
	assert.True(s.T(), sess.Active())
}

func (s *SessionSuite) TestNewSession_RejectsBadInputs() {
	cases := []struct {
		name     string
		key      string
		username string
		channel  Channel
		attempts int
	}{
		{"empty key", "", "alice", ChannelSMS, 3},
		{"empty username", "+15551234567", "", ChannelSMS, 3},
		{"bad channel", "+15551234567", "alice", Channel("carrier-pigeon"), 3},
		{"zero attempts", "+15551234567", "alice", ChannelSMS, 0},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := NewSession(tc.key, tc.username, tc.channel, tc.attempts, s.now)
			assert.Error(s.T(), err)
		})
	}
}

func (s *SessionSuite) TestTransitions_ForwardOnly() {
	sess := s.newSession()

	require.NoError(s.T(), sess.TransitionTo(StateCodeSent, s.now))
	require.NoError(s.T(), sess.TransitionTo(StateVerified, s.now))

	// no going back once verified
	err := sess.TransitionTo(StateCodeSent, s.now)
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidState))

	require.NoError(s.T(), sess.TransitionTo(StateCompleted, s.now))
	assert.False(s.T(), sess.Active())
}

func (s *SessionSuite) TestTransitions_NoSkippingStates() {
	sess := s.newSession()

	err := sess.TransitionTo(StateVerified, s.now)
	assert.Error(s.T(), err, "created may not jump straight to verified")
}

func (s *SessionSuite) TestTransitions_CodeSentMayRepeat() {
	sess := s.newSession()

	require.NoError(s.T(), sess.TransitionTo(StateCodeSent, s.now))
	assert.NoError(s.T(), sess.TransitionTo(StateCodeSent, s.now), "resends re-enter code_sent")
}

func (s *SessionSuite) TestTransitions_TerminalStatesAreFinal() {
	for _, terminal := range []State{StateCompleted, StateExpired, StateFailed} {
		s.Run(string(terminal), func() {
			sess := s.newSession()
			if terminal == StateCompleted {
				require.NoError(s.T(), sess.TransitionTo(StateCodeSent, s.now))
				require.NoError(s.T(), sess.TransitionTo(StateVerified, s.now))
			}
			require.NoError(s.T(), sess.TransitionTo(terminal, s.now))

			for _, next := range []State{StateCreated, StateCodeSent, StateVerified, StateCompleted, StateExpired, StateFailed} {
				assert.Error(s.T(), sess.TransitionTo(next, s.now),
					"%s -> %s must be refused", terminal, next)
			}
		})
	}
}

func (s *SessionSuite) TestTransitions_FailureReachableFromAnyActiveState() {
	sess := s.newSession()
	require.NoError(s.T(), sess.TransitionTo(StateExpired, s.now))

	sess = s.newSession()
	require.NoError(s.T(), sess.TransitionTo(StateCodeSent, s.now))
	require.NoError(s.T(), sess.TransitionTo(StateFailed, s.now))
}

func (s *SessionSuite) TestConsumeAttempt_FailsSessionAtZero() {
	sess := s.newSession()

	require.NoError(s.T(), sess.ConsumeAttempt(s.now))
	assert.Equal(s.T(), 2, sess.AttemptsRemaining)
	require.NoError(s.T(), sess.ConsumeAttempt(s.now))
	require.NoError(s.T(), sess.ConsumeAttempt(s.now))

	assert.Equal(s.T(), 0, sess.AttemptsRemaining)
	assert.Equal(s.T(), StateFailed, sess.State)

	// never goes negative
	err := sess.ConsumeAttempt(s.now)
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeAttemptsExhausted))
	assert.Equal(s.T(), 0, sess.AttemptsRemaining)
}

func (s *SessionSuite) TestRecordSend_TracksFirstSMS() {
	sess := s.newSession()

	sess.RecordSend(ChannelVoice, s.now)
	assert.True(s.T(), sess.FirstSMSAt.IsZero(), "voice sends do not start the SMS clock")

	sess.RecordSend(ChannelSMS, s.now.Add(time.Minute))
	assert.Equal(s.T(), s.now.Add(time.Minute), sess.FirstSMSAt)

	sess.RecordSend(ChannelSMS, s.now.Add(2*time.Minute))
	assert.Equal(s.T(), s.now.Add(time.Minute), sess.FirstSMSAt, "only the first SMS is remembered")

	assert.Equal(s.T(), 1, sess.VoiceAttempts())
	assert.Len(s.T(), sess.SendAttempts, 3)
}

func (s *SessionSuite) TestClone_IsDeep() {
	sess := s.newSession()
	sess.CodeHash = []byte{1, 2, 3}
	sess.CodeSalt = []byte{4, 5, 6}
	sess.RecordSend(ChannelSMS, s.now)

	clone := sess.Clone()
	clone.CodeHash[0] = 9
	clone.SendAttempts[0].Channel = ChannelVoice

	assert.Equal(s.T(), byte(1), sess.CodeHash[0])
	assert.Equal(s.T(), ChannelSMS, sess.SendAttempts[0].Channel)
}

func (s *SessionSuite) TestParseChannel() {
	channel, err := ParseChannel(" SMS ")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), ChannelSMS, channel)

	channel, err = ParseChannel("voice")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), ChannelVoice, channel)

	_, err = ParseChannel("email")
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *SessionSuite) TestNormalizeKey() {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "+15551234567", false},
		{"15551234567", "+15551234567", false},
		{"+44.2079.460.958", "+442079460958", false},
		{"123456", "", true},             // too short
		{"+12345678901234567", "", true}, // too long
		{"555-CALL-NOW", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeKey(tc.in)
		if tc.wantErr {
			assert.Error(s.T(), err, "input %q", tc.in)
			continue
		}
		require.NoError(s.T(), err, "input %q", tc.in)
		assert.Equal(s.T(), tc.want, got)
	}
}

func (s *SessionSuite) TestMaskPhone() {
	assert.Equal(s.T(), "+15*******67", MaskPhone("+15551234567"))
	assert.Equal(s.T(), "+1234", MaskPhone("+1234"), "short strings pass through")
}
