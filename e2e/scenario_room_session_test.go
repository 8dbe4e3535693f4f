package e2e

import (
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/infrastructure/history"
	"chat-session/infrastructure/transport/memory"
	"chat-session/repositories"
	"chat-session/runtime/workers"
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type RoomSessionSuite struct {
	BaseSuite
	broker     *memory.Broker
	relay      *Relay
	repository repositories.HistoryRepository
	stopRelay  context.CancelFunc
}

func TestRoomSessionSuite(t *testing.T) {
	suite.Run(t, new(RoomSessionSuite))
}

func (s *RoomSessionSuite) SetupTest() {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })

	s.broker = memory.NewBroker()
	s.repository = repositories.NewHistoryRepository(db, s.logger(), 0)
	s.relay = NewRelay(s.logger().With("component", "relay"), s.broker, s.repository)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopRelay = cancel
	go workers.NewSupervisor(s.logger(), 20*time.Millisecond).Add(s.relay).Run(ctx)
	s.Require().Eventually(s.relay.Serving, waitFor, tick)
}

func (s *RoomSessionSuite) TearDownTest() {
	s.stopRelay()
}

func (s *RoomSessionSuite) TestCreator_Kicks_Late_Joiner() {
	ctx := context.Background()
	alice := domain.User{ID: 1, Nickname: "alice"}
	bob := domain.User{ID: 2, Nickname: "bob"}
	room := domain.NewRoom(7, "general", alice.ID)
	roomHistory := history.NewLocal(s.repository)

	aliceClient := s.StartClient(alice, s.broker, roomHistory, Confirm{Exit: true, Reason: "spam"})

	s.Step("Creator opens the room and talks alone", func() {
		s.Require().NoError(aliceClient.Engine.Enter(ctx, room))
		s.Require().Eventually(func() bool {
			return len(aliceClient.View().Participants) == 1
		}, waitFor, tick)

		s.Require().NoError(aliceClient.Engine.SendMessage(ctx, "first"))
		s.Require().NoError(aliceClient.Engine.SendMessage(ctx, "second"))
		s.Require().Eventually(func() bool {
			return len(aliceClient.Messages()) == 2
		}, waitFor, tick)
	})

	bobClient := s.StartClient(bob, s.broker, roomHistory, Confirm{})
	s.Step("Late joiner loads the history", func() {
		s.Require().NoError(bobClient.Engine.Enter(ctx, room))

		s.Require().Eventually(func() bool {
			view := bobClient.View()
			return !view.Loading && len(view.Participants) == 2
		}, waitFor, tick)
		s.Require().Equal([]string{"first", "second"}, bobClient.Messages())
		s.Require().Equal(domain.StateActive, bobClient.View().State)
	})

	s.Step("Both sides see live messages once", func() {
		s.Require().NoError(bobClient.Engine.SendMessage(ctx, "hello alice"))
		s.Require().Eventually(func() bool {
			return lo.Contains(aliceClient.Messages(), "hello alice")
		}, waitFor, tick)
		s.Require().Eventually(func() bool {
			return lo.Count(bobClient.Messages(), "hello alice") == 1
		}, waitFor, tick)
	})

	s.Step("Creator kicks the joiner", func() {
		target, ok := lo.Find(aliceClient.View().Participants, func(p domain.Participant) bool {
			return p.UserID == bob.ID
		})
		s.Require().True(ok)
		s.Require().True(domain.CanKick(target, alice, room))
		s.Require().NoError(aliceClient.Engine.Kick(ctx, target))

		s.Require().Eventually(func() bool {
			return bobClient.View().State == domain.StateExited
		}, waitFor, tick)
		s.Require().Equal(1, bobClient.Events.Count(event.KickedType))
		s.Require().Nil(bobClient.View().Room)
		s.Require().Eventually(func() bool {
			return len(aliceClient.View().Participants) == 1
		}, waitFor, tick)
	})

	s.Step("Creator exits for good", func() {
		s.Require().NoError(aliceClient.Engine.Exit(ctx))
		s.Require().Eventually(func() bool {
			return len(s.relay.Members(room.ID)) == 0
		}, waitFor, tick)
		s.Require().Equal(domain.StateExited, aliceClient.View().State)
	})
}

func (s *RoomSessionSuite) TestRejoin_After_Outage() {
	ctx := context.Background()
	carol := domain.User{ID: 3, Nickname: "carol"}
	room := domain.NewRoom(9, "ops", 1)
	client := s.StartClient(carol, s.broker, history.NewLocal(s.repository), Confirm{})

	s.Step("Joins the room", func() {
		s.Require().NoError(client.Engine.Enter(ctx, room))
		s.Require().Eventually(func() bool {
			return lo.Contains(s.relay.Members(room.ID), "carol")
		}, waitFor, tick)
	})

	s.Step("Outage drops the session", func() {
		s.broker.DropAll()
		s.Require().Eventually(func() bool {
			return client.View().State == domain.StateIdle
		}, waitFor, tick)
		s.Require().Nil(client.View().Room)
	})

	s.Step("Entering again sends a fresh join", func() {
		s.Require().Eventually(func() bool {
			return client.View().Connectivity == domain.Connected && s.relay.Serving()
		}, waitFor, tick)
		s.Require().NoError(client.Engine.Enter(ctx, room))
		s.Require().Eventually(func() bool {
			view := client.View()
			return view.State == domain.StateActive && view.HasSentJoin && len(view.Participants) == 1
		}, waitFor, tick)
	})
}
