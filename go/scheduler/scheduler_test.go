package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/Smarter-Dev/smarter-dev-sub002/go/api"
	"github.com/Smarter-Dev/smarter-dev-sub002/go/squads"
)

// fakePoster records posted messages and can fail a channel a fixed
// number of times, or always with a designated error.
type fakePoster struct {
	mu        sync.Mutex
	messages  []fakeMessage
	forums    []fakeMessage
	pins      []string
	failures  map[string]int
	failWith  map[string]error
	nextMsgID int
}

type fakeMessage struct {
	ChannelID    string
	Content      string
	Components   []discordgo.MessageComponent
	RoleMentions bool
}

func newFakePoster() *fakePoster {
	return &fakePoster{
		failures: make(map[string]int),
		failWith: make(map[string]error),
	}
}

func (p *fakePoster) CreateMessage(_ context.Context, channelID, content string, components []discordgo.MessageComponent, roleMentions bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failWith[channelID]; ok {
		return "", err
	}
	if p.failures[channelID] > 0 {
		p.failures[channelID]--
		return "", fmt.Errorf("transient send failure")
	}
	p.messages = append(p.messages, fakeMessage{channelID, content, components, roleMentions})
	p.nextMsgID++
	return fmt.Sprintf("msg-%d", p.nextMsgID), nil
}

func (p *fakePoster) CreateForumPost(_ context.Context, channelID, name, content string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failWith[channelID]; ok {
		return "", err
	}
	p.forums = append(p.forums, fakeMessage{ChannelID: channelID, Content: name + "\n" + content})
	p.nextMsgID++
	return fmt.Sprintf("thread-%d", p.nextMsgID), nil
}

func (p *fakePoster) PinMessage(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pins = append(p.pins, messageID)
	return nil
}

func (p *fakePoster) sent() []fakeMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fakeMessage(nil), p.messages...)
}

type fakeLister struct {
	squadList []squads.Squad
}

func (l *fakeLister) ListSquads(context.Context, string, bool, bool) ([]squads.Squad, error) {
	return l.squadList, nil
}

// testCore returns a core whose sleeps return immediately and whose
// clock is fixed.
func testCore(name string, now time.Time) *core {
	var c = newCore(name)
	c.now = func() time.Time { return now }
	c.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return c
}

func testClient(t *testing.T, handler http.Handler) (*api.Client, *httptest.Server) {
	t.Helper()
	var server = httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := api.NewClient(api.Config{
		BaseURL:   server.URL,
		Token:     "test-token",
		BaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, server
}

func TestBuildContentWithinLimit(t *testing.T) {
	var content = buildContent("<@&1>\n\n# Title\n\n", "short body")
	require.Equal(t, "<@&1>\n\n# Title\n\nshort body", content)
}

func TestBuildContentTruncates(t *testing.T) {
	var prefix = "<@&123456789>\n\n# A Long Challenge\n\n"
	var body = strings.Repeat("x", 3000)
	var content = buildContent(prefix, body)

	require.LessOrEqual(t, len(content), maxContentLength)
	require.True(t, strings.HasPrefix(content, prefix))
	require.True(t, strings.HasSuffix(content, "..."))
}

func TestClaimDedupes(t *testing.T) {
	var c = testCore("test", time.Now())
	require.True(t, c.claim("job-1"))
	require.False(t, c.claim("job-1"))
	c.release("job-1")
	require.True(t, c.claim("job-1"))
}

func TestSpawnJobRunsOncePerID(t *testing.T) {
	var c = testCore("test", time.Now())
	var mu sync.Mutex
	var runs int
	var started = make(chan struct{})
	var proceed = make(chan struct{})

	var run = func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		close(started)
		<-proceed
		return nil
	}
	var fireAt = time.Now().Add(-time.Second)

	// Second spawn while the first is still in flight must be a no-op.
	c.spawnJob(context.Background(), "job-1", fireAt, run)
	<-started
	c.spawnJob(context.Background(), "job-1", fireAt, func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})
	close(proceed)
	c.jobs.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, runs)
}

func TestSendToChannelRetriesTransientFailures(t *testing.T) {
	var c = testCore("test", time.Now())
	var poster = newFakePoster()
	poster.failures["chan-1"] = 2

	var err = c.sendToChannel(context.Background(), poster, delivery{
		channelID: "chan-1",
		content:   "hello",
	}, firstPassRetries)
	require.NoError(t, err)
	require.Len(t, poster.sent(), 1)
}

func TestSendToChannelExhaustsRetries(t *testing.T) {
	var c = testCore("test", time.Now())
	var poster = newFakePoster()
	poster.failures["chan-1"] = 10

	var err = c.sendToChannel(context.Background(), poster, delivery{
		channelID: "chan-1",
		content:   "hello",
	}, firstPassRetries)
	require.Error(t, err)
	require.Empty(t, poster.sent())
}

func TestSendToChannelSkipsTerminalErrors(t *testing.T) {
	var c = testCore("test", time.Now())
	var poster = newFakePoster()
	poster.failWith["chan-1"] = &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
	}

	var err = c.sendToChannel(context.Background(), poster, delivery{
		channelID: "chan-1",
		content:   "hello",
	}, firstPassRetries)
	require.Error(t, err)
	require.Empty(t, poster.sent())
}

func TestDeliverAllSecondPassRecovers(t *testing.T) {
	var c = testCore("test", time.Now())
	var poster = newFakePoster()
	// Fails the whole first pass, succeeds on the second.
	poster.failures["chan-2"] = firstPassRetries

	var sent = c.deliverAll(context.Background(), poster, []delivery{
		{channelID: "chan-1", content: "a"},
		{channelID: "chan-2", content: "b"},
	})
	require.Equal(t, 2, sent)
	require.Len(t, poster.sent(), 2)
}

func TestChallengeAnnounceFansOutAndMarks(t *testing.T) {
	var mu sync.Mutex
	var marked []string
	var mux = http.NewServeMux()
	mux.HandleFunc("POST /challenges/{id}/{transition}", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		marked = append(marked, r.PathValue("id")+":"+r.PathValue("transition"))
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	client, _ := testClient(t, mux)

	var poster = newFakePoster()
	var lister = &fakeLister{squadList: []squads.Squad{
		{ID: "sq-1", RoleID: "role-1", Name: "Alpha", IsActive: true, AnnouncementChannel: "chan-1"},
		{ID: "sq-2", RoleID: "role-2", Name: "Bravo", IsActive: true, AnnouncementChannel: "chan-2"},
		{ID: "sq-3", RoleID: "role-3", Name: "Idle", IsActive: false, AnnouncementChannel: "chan-3"},
		{ID: "sq-4", RoleID: "role-4", Name: "Silent", IsActive: true},
	}}
	var s = NewChallengeScheduler(client, poster, lister)
	s.core = testCore("challenge", time.Now())

	var err = s.announce(context.Background(), Challenge{
		ID:          "ch-9",
		GuildID:     "guild-1",
		Title:       "Week 3",
		Description: "Reverse the list.",
	})
	require.NoError(t, err)

	var sent = poster.sent()
	require.Len(t, sent, 2)
	require.Equal(t, "chan-1", sent[0].ChannelID)
	require.True(t, strings.HasPrefix(sent[0].Content, "<@&role-1>\n\n# Week 3\n\n"))
	require.True(t, sent[0].RoleMentions)
	require.Len(t, sent[0].Components, 1)

	var row, ok = sent[0].Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	require.Equal(t, "challenge_input:ch-9", row.Components[0].(discordgo.Button).CustomID)
	require.Equal(t, "challenge_submit:ch-9", row.Components[1].(discordgo.Button).CustomID)

	require.Equal(t, []string{"ch-9:mark-announced", "ch-9:mark-released"}, marked)
}

func TestChallengeAnnounceNoChannelsIsError(t *testing.T) {
	client, _ := testClient(t, http.NewServeMux())
	var s = NewChallengeScheduler(client, newFakePoster(), &fakeLister{})
	s.core = testCore("challenge", time.Now())

	var err = s.announce(context.Background(), Challenge{ID: "ch-1", GuildID: "g"})
	require.Error(t, err)
}

func TestScheduledMessageAnnouncementChannels(t *testing.T) {
	var mu sync.Mutex
	var marked []string
	var mux = http.NewServeMux()
	mux.HandleFunc("POST /scheduled-messages/{id}/mark-sent", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		marked = append(marked, r.PathValue("id"))
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	client, _ := testClient(t, mux)

	var poster = newFakePoster()
	var lister = &fakeLister{squadList: []squads.Squad{
		{ID: "sq-1", RoleID: "role-1", Name: "Alpha", IsActive: true, AnnouncementChannel: "chan-1"},
	}}
	var s = NewMessageScheduler(client, poster, lister)
	s.core = testCore("scheduled_message", time.Now())

	var err = s.deliver(context.Background(), ScheduledMessage{
		ID:                         "m-1",
		GuildID:                    "guild-1",
		Title:                      "Town Hall",
		Description:                "Squad copy.",
		AnnouncementChannels:       []string{"ann-1"},
		AnnouncementChannelMessage: "Server-wide copy.",
	})
	require.NoError(t, err)

	var sent = poster.sent()
	require.Len(t, sent, 2)
	require.Equal(t, "<@&role-1>\n\n# Town Hall\n\nSquad copy.", sent[0].Content)
	require.True(t, sent[0].RoleMentions)
	require.Equal(t, "ann-1", sent[1].ChannelID)
	require.Equal(t, "# Town Hall\n\nServer-wide copy.", sent[1].Content)
	require.False(t, sent[1].RoleMentions)

	require.Equal(t, []string{"m-1"}, marked)
}

func TestRepeatingPostsLatestPerSeries(t *testing.T) {
	var base = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	var due = []RepeatingMessage{
		{ID: "r-1", SeriesID: "series-a", ChannelID: "chan-1", Content: "old", FireAt: base.Add(-3 * time.Minute)},
		{ID: "r-2", SeriesID: "series-a", ChannelID: "chan-1", Content: "newer", FireAt: base.Add(-time.Minute)},
		{ID: "r-3", SeriesID: "series-b", ChannelID: "chan-2", Content: "only", FireAt: base.Add(-time.Minute)},
	}

	var mu sync.Mutex
	var marked []string
	var mux = http.NewServeMux()
	mux.HandleFunc("GET /repeating-messages/due", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(due)
	})
	mux.HandleFunc("POST /repeating-messages/{id}/mark-sent", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		marked = append(marked, r.PathValue("id"))
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	client, _ := testClient(t, mux)

	var poster = newFakePoster()
	var s = NewRepeatingScheduler(client, poster)
	s.core = testCore("repeating_message", base)

	require.NoError(t, s.checkAndPost(context.Background()))
	s.jobs.Wait()

	var sent = poster.sent()
	require.Len(t, sent, 2)
	var contents = map[string]string{}
	for _, m := range sent {
		contents[m.ChannelID] = m.Content
	}
	require.Equal(t, "newer", contents["chan-1"])
	require.Equal(t, "only", contents["chan-2"])

	// The stale occurrence is marked sent without posting.
	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"r-1", "r-2", "r-3"}, marked)
}

func TestNextMinuteDelay(t *testing.T) {
	var now = time.Date(2026, time.March, 10, 12, 0, 30, 0, time.UTC)
	require.Equal(t, 30*time.Second+100*time.Millisecond, nextMinuteDelay(now))

	now = time.Date(2026, time.March, 10, 12, 0, 0, 50_000_000, time.UTC)
	require.Equal(t, 59*time.Second+950*time.Millisecond+100*time.Millisecond, nextMinuteDelay(now))
}

func TestAoCCatchUpCreatesMissingThreads(t *testing.T) {
	var existing = map[string]bool{"2": true}
	var mu sync.Mutex
	var recorded []aocThread

	var mux = http.NewServeMux()
	mux.HandleFunc("GET /advent-of-code/active-configs", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]AoCConfig{
			{GuildID: "guild-1", ForumChannelID: "forum-1", Year: 2025},
		})
	})
	mux.HandleFunc("GET /advent-of-code/{guild}/threads/{year}/{day}", func(w http.ResponseWriter, r *http.Request) {
		if existing[r.PathValue("day")] {
			w.Write([]byte(`{"threadId":"t"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"not found"}`))
	})
	mux.HandleFunc("POST /advent-of-code/{guild}/threads", func(w http.ResponseWriter, r *http.Request) {
		var thread aocThread
		require.NoError(t, json.NewDecoder(r.Body).Decode(&thread))
		mu.Lock()
		recorded = append(recorded, thread)
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	client, _ := testClient(t, mux)

	var poster = newFakePoster()
	s, err := NewAoCScheduler(client, poster)
	require.NoError(t, err)
	var now = time.Date(2025, time.December, 5, 9, 0, 0, 0, s.location)
	s.core = testCore("advent_of_code", now)

	require.NoError(t, s.checkAndPost(context.Background()))

	// Days 1, 3, 4, 5 created in order; day 2 already exists.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, recorded, 4)
	var days []int
	for _, thread := range recorded {
		require.Equal(t, 2025, thread.Year)
		days = append(days, thread.Day)
	}
	require.Equal(t, []int{1, 3, 4, 5}, days)

	require.Len(t, poster.forums, 4)
	require.True(t, strings.HasPrefix(poster.forums[0].Content, "Day 1 - Advent of Code\n"))
	require.Contains(t, poster.forums[0].Content, "https://adventofcode.com/2025/day/1")
}

func TestAoCCurrentDay(t *testing.T) {
	client, _ := testClient(t, http.NewServeMux())
	s, err := NewAoCScheduler(client, newFakePoster())
	require.NoError(t, err)

	var cases = []struct {
		now  time.Time
		year int
		want int
	}{
		{time.Date(2025, time.December, 5, 9, 0, 0, 0, s.location), 2025, 5},
		// The pre-midnight wake counts as the day about to unlock.
		{time.Date(2025, time.December, 4, 23, 59, 58, 0, s.location), 2025, 5},
		{time.Date(2025, time.November, 30, 23, 59, 58, 0, s.location), 2025, 1},
		{time.Date(2025, time.December, 26, 9, 0, 0, 0, s.location), 2025, 0},
		{time.Date(2025, time.July, 1, 9, 0, 0, 0, s.location), 2025, 0},
		{time.Date(2026, time.December, 5, 9, 0, 0, 0, s.location), 2025, 0},
	}
	for _, tc := range cases {
		s.core = testCore("advent_of_code", tc.now)
		require.Equal(t, tc.want, s.currentDay(tc.year), "now=%s", tc.now)
	}
}

func TestAoCNextWake(t *testing.T) {
	client, _ := testClient(t, http.NewServeMux())
	s, err := NewAoCScheduler(client, newFakePoster())
	require.NoError(t, err)

	// Far from midnight the sleep caps at an hour.
	var noon = time.Date(2025, time.December, 5, 12, 0, 0, 0, s.location)
	require.Equal(t, time.Hour, s.nextWake(noon))

	// Close to midnight it lands exactly two seconds before it.
	var late = time.Date(2025, time.December, 5, 23, 30, 0, 0, s.location)
	require.Equal(t, 29*time.Minute+58*time.Second, s.nextWake(late))
}

func TestStartStop(t *testing.T) {
	var mux = http.NewServeMux()
	mux.HandleFunc("GET /challenges/upcoming-announcements", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})
	client, _ := testClient(t, mux)

	var s = NewChallengeScheduler(client, newFakePoster(), &fakeLister{})
	s.Start(context.Background())
	require.True(t, s.Running())
	s.Stop()
	require.False(t, s.Running())

	// Stop again is a no-op.
	s.Stop()
}

func TestFetchWindowPassesSeconds(t *testing.T) {
	var gotSeconds string
	var mux = http.NewServeMux()
	mux.HandleFunc("GET /quests/upcoming-announcements", func(w http.ResponseWriter, r *http.Request) {
		gotSeconds = r.URL.Query().Get("seconds")
		w.Write([]byte(`[]`))
	})
	client, _ := testClient(t, mux)

	jobs, err := fetchWindow[Quest](context.Background(), client, "/quests/upcoming-announcements", DefaultLookAhead)
	require.NoError(t, err)
	require.Empty(t, jobs)
	require.Equal(t, "45", gotSeconds)
}

func TestGroupBySeriesSortsByFireAt(t *testing.T) {
	var base = time.Now()
	var grouped = groupBySeries([]RepeatingMessage{
		{ID: "b", SeriesID: "s", FireAt: base},
		{ID: "a", SeriesID: "s", FireAt: base.Add(-time.Minute)},
	})
	require.Len(t, grouped["s"], 2)
	require.Equal(t, "a", grouped["s"][0].ID)
	require.Equal(t, "b", grouped["s"][1].ID)
}
