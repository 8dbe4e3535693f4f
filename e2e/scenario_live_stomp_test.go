package e2e

import (
	"chat-session/domain"
	"chat-session/infrastructure/history"
	"chat-session/infrastructure/transport/stompws"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

// LiveStompSuite runs against a real room service, see Config.
type LiveStompSuite struct {
	BaseSuite
}

func TestLiveStompSuite(t *testing.T) {
	suite.Run(t, new(LiveStompSuite))
}

func (s *LiveStompSuite) SetupSuite() {
	s.BaseSuite.SetupSuite()
	if s.Config.StompURL == "" {
		s.T().Skip("E2E_STOMP_URL not set")
	}
}

func (s *LiveStompSuite) TestMessage_Round_Trip() {
	ctx := context.Background()
	user := domain.User{ID: domain.UserID(time.Now().Unix()), Nickname: "e2e-" + uuid.NewString()[:8]}
	room := domain.NewRoom(domain.RoomID(s.Config.RoomID), "e2e", 0)
	dialer := stompws.NewDialer(s.logger(), s.Config.StompURL, stompws.WithHeartBeat(10*time.Second))
	fetcher := history.NewHTTPFetcher(s.logger(), s.Config.HistoryBaseURL, s.Config.Timeout)
	text := "ping " + uuid.NewString()

	client := s.StartClient(user, dialer, fetcher, Confirm{Exit: true})

	s.Step("Enters the room", func() {
		s.Require().Eventually(func() bool {
			return client.View().Connectivity == domain.Connected
		}, s.Config.Timeout, 50*time.Millisecond)
		s.Require().NoError(client.Engine.Enter(ctx, room))
		s.Require().Eventually(func() bool {
			return lo.ContainsBy(client.View().Participants, func(p domain.Participant) bool { return p.UserID == user.ID })
		}, s.Config.Timeout, 50*time.Millisecond)
	})

	s.Step("Receives its own message", func() {
		s.Require().NoError(client.Engine.SendMessage(ctx, text))
		s.Require().Eventually(func() bool {
			return lo.Contains(client.Messages(), text)
		}, s.Config.Timeout, 50*time.Millisecond)
	})

	s.Step("Finds the message in the history after rejoining", func() {
		s.Require().NoError(client.Engine.Leave(ctx))
		s.Require().NoError(client.Engine.Enter(ctx, room))
		s.Require().Eventually(func() bool {
			return !client.View().Loading && lo.Count(client.Messages(), text) == 1
		}, s.Config.Timeout, 50*time.Millisecond)
	})

	s.Step("Exits", func() {
		s.Require().NoError(client.Engine.Exit(ctx))
		s.Require().Equal(domain.StateExited, client.View().State)
	})
}
