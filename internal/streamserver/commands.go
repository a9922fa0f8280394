package streamserver

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/harborctl/harborctl/internal/ptyhost"
	"github.com/harborctl/harborctl/internal/store"
)

// scopeBody is embedded in every command body that touches persisted state:
// every entity belongs to exactly one scope.
type scopeBody struct {
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
}

func (b scopeBody) scope() store.Scope {
	return store.Scope{TenantID: b.TenantID, UserID: b.UserID, WorkspaceID: b.WorkspaceID}
}

func (b scopeBody) validate() error {
	if b.TenantID == "" || b.UserID == "" || b.WorkspaceID == "" {
		return invalidf("tenantId, userId, and workspaceId are all required")
	}
	return nil
}

// runCommand dispatches one decoded command against the Workspace Store,
// Session Coordinator, or PTY
// session runtimes, returning the value to carry in command.completed's
// result field.
func (s *Server) runCommand(ctx context.Context, c *connection, cmdType string, body json.RawMessage) (any, error) {
	switch cmdType {
	case "directory.upsert":
		return s.cmdDirectoryUpsert(ctx, body)
	case "directory.list":
		return s.cmdDirectoryList(ctx, body)
	case "directory.archive":
		return s.cmdDirectoryArchive(ctx, body)

	case "repository.upsert":
		return s.cmdRepositoryUpsert(ctx, body)
	case "repository.update":
		return s.cmdRepositoryUpdate(ctx, body)
	case "repository.list":
		return s.cmdRepositoryList(ctx, body)
	case "repository.archive":
		return s.cmdRepositoryArchive(ctx, body)

	case "conversation.create":
		return s.cmdConversationCreate(ctx, body)
	case "conversation.list":
		return s.cmdConversationList(ctx, body)
	case "conversation.update":
		return s.cmdConversationUpdate(ctx, body)
	case "conversation.archive":
		return s.cmdConversationArchive(ctx, body)
	case "conversation.delete":
		return s.cmdConversationDelete(ctx, body)

	case "task.create":
		return s.cmdTaskCreate(ctx, body)
	case "task.update":
		return s.cmdTaskUpdate(ctx, body)
	case "task.ready":
		return s.cmdTaskTransition(ctx, body, (*store.Store).ReadyTask)
	case "task.draft":
		return s.cmdTaskTransition(ctx, body, (*store.Store).DraftTask)
	case "task.complete":
		return s.cmdTaskTransition(ctx, body, (*store.Store).CompleteTask)
	case "task.reorder":
		return s.cmdTaskReorder(ctx, body)
	case "task.delete":
		return s.cmdTaskDelete(ctx, body)
	case "task.list":
		return s.cmdTaskList(ctx, body)

	case "stream.subscribe":
		return s.cmdStreamSubscribe(c, body)
	case "stream.unsubscribe":
		return s.cmdStreamUnsubscribe(c, body)

	case "session.list":
		return s.cmdSessionList(body)
	case "session.status":
		return s.cmdSessionStatus(body)
	case "session.snapshot":
		return s.cmdSessionSnapshot(body)
	case "session.respond":
		return s.cmdSessionRespond(body)
	case "session.claim":
		return s.cmdSessionClaim(body)
	case "session.release":
		return s.cmdSessionRelease(body)
	case "session.interrupt":
		return s.cmdSessionInterrupt(body)
	case "session.remove":
		return s.cmdSessionRemove(body)

	case "attention.list":
		return s.cmdAttentionList(body)

	case "pty.start":
		return s.cmdPTYStart(body)
	case "pty.attach":
		return s.cmdPTYAttach(body)
	case "pty.detach":
		return s.cmdPTYDetach(body)
	case "pty.subscribe-events":
		return s.cmdPTYSubscribeEvents(c, body)
	case "pty.unsubscribe-events":
		return s.cmdStreamUnsubscribe(c, body)
	case "pty.close":
		return s.cmdPTYClose(body)

	default:
		return nil, invalidf("unknown command type %q", cmdType)
	}
}

// --- directory ---

type directoryUpsertBody struct {
	scopeBody
	Path string `json:"path"`
}

func (s *Server) cmdDirectoryUpsert(ctx context.Context, body json.RawMessage) (any, error) {
	var b directoryUpsertBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.Path == "" {
		return nil, invalidf("path is required")
	}
	d, err := s.store.UpsertDirectory(ctx, b.scope(), b.Path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

type directoryListBody struct {
	scopeBody
	IncludeArchived bool `json:"includeArchived"`
	Limit           int  `json:"limit"`
}

func (s *Server) cmdDirectoryList(ctx context.Context, body json.RawMessage) (any, error) {
	var b directoryListBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return s.store.ListDirectories(ctx, b.scope(), b.IncludeArchived, defaultLimit(b.Limit))
}

type directoryArchiveBody struct {
	scopeBody
	DirectoryID string `json:"directoryId"`
}

func (s *Server) cmdDirectoryArchive(ctx context.Context, body json.RawMessage) (any, error) {
	var b directoryArchiveBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.ArchiveDirectory(ctx, b.scope(), b.DirectoryID)
}

// --- repository ---

type repositoryUpsertBody struct {
	scopeBody
	Name                string         `json:"name"`
	NormalizedRemoteURL string         `json:"normalizedRemoteUrl"`
	DefaultBranch       string         `json:"defaultBranch"`
	Metadata            map[string]any `json:"metadata"`
}

func (s *Server) cmdRepositoryUpsert(ctx context.Context, body json.RawMessage) (any, error) {
	var b repositoryUpsertBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.NormalizedRemoteURL == "" {
		return nil, invalidf("normalizedRemoteUrl is required")
	}
	return s.store.UpsertRepository(ctx, b.scope(), b.Name, b.NormalizedRemoteURL, b.DefaultBranch, b.Metadata)
}

type repositoryUpdateBody struct {
	scopeBody
	RepositoryID  string         `json:"repositoryId"`
	Name          string         `json:"name"`
	DefaultBranch string         `json:"defaultBranch"`
	Metadata      map[string]any `json:"metadata"`
}

func (s *Server) cmdRepositoryUpdate(ctx context.Context, body json.RawMessage) (any, error) {
	var b repositoryUpdateBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.UpdateRepository(ctx, b.scope(), b.RepositoryID, b.Name, b.DefaultBranch, b.Metadata)
}

type repositoryListBody struct {
	scopeBody
	IncludeArchived bool `json:"includeArchived"`
	Limit           int  `json:"limit"`
}

func (s *Server) cmdRepositoryList(ctx context.Context, body json.RawMessage) (any, error) {
	var b repositoryListBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return s.store.ListRepositories(ctx, b.scope(), b.IncludeArchived, defaultLimit(b.Limit))
}

type repositoryArchiveBody struct {
	scopeBody
	RepositoryID string `json:"repositoryId"`
}

func (s *Server) cmdRepositoryArchive(ctx context.Context, body json.RawMessage) (any, error) {
	var b repositoryArchiveBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.ArchiveRepository(ctx, b.scope(), b.RepositoryID)
}

// --- conversation ---

type conversationCreateBody struct {
	scopeBody
	DirectoryID  string         `json:"directoryId"`
	Title        string         `json:"title"`
	AgentType    string         `json:"agentType"`
	AdapterState map[string]any `json:"adapterState"`
}

func (s *Server) cmdConversationCreate(ctx context.Context, body json.RawMessage) (any, error) {
	var b conversationCreateBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.DirectoryID == "" {
		return nil, invalidf("directoryId is required")
	}
	return s.store.CreateConversation(ctx, b.scope(), b.DirectoryID, b.Title, store.AgentType(b.AgentType), b.AdapterState)
}

type conversationListBody struct {
	scopeBody
	DirectoryID     string `json:"directoryId"`
	IncludeArchived bool   `json:"includeArchived"`
	Limit           int    `json:"limit"`
}

func (s *Server) cmdConversationList(ctx context.Context, body json.RawMessage) (any, error) {
	var b conversationListBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, b.scope(), b.DirectoryID, b.IncludeArchived, defaultLimit(b.Limit))
}

type conversationUpdateBody struct {
	scopeBody
	ConversationID string         `json:"conversationId"`
	Title          string         `json:"title"`
	AdapterState   map[string]any `json:"adapterState"`
}

func (s *Server) cmdConversationUpdate(ctx context.Context, body json.RawMessage) (any, error) {
	var b conversationUpdateBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.UpdateConversation(ctx, b.scope(), b.ConversationID, b.Title, b.AdapterState)
}

type conversationIDBody struct {
	scopeBody
	ConversationID string `json:"conversationId"`
}

func (s *Server) cmdConversationArchive(ctx context.Context, body json.RawMessage) (any, error) {
	var b conversationIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.ArchiveConversation(ctx, b.scope(), b.ConversationID)
}

func (s *Server) cmdConversationDelete(ctx context.Context, body json.RawMessage) (any, error) {
	var b conversationIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.DeleteConversation(ctx, b.scope(), b.ConversationID)
}

// --- task ---

type taskCreateBody struct {
	scopeBody
	RepositoryID string `json:"repositoryId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

func (s *Server) cmdTaskCreate(ctx context.Context, body json.RawMessage) (any, error) {
	var b taskCreateBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return s.store.CreateTask(ctx, b.scope(), b.RepositoryID, b.Title, b.Description)
}

type taskUpdateBody struct {
	scopeBody
	TaskID      string `json:"taskId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) cmdTaskUpdate(ctx context.Context, body json.RawMessage) (any, error) {
	var b taskUpdateBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.UpdateTask(ctx, b.scope(), b.TaskID, b.Title, b.Description)
}

type taskIDBody struct {
	scopeBody
	TaskID string `json:"taskId"`
}

// cmdTaskTransition is shared by task.ready/draft/complete: decode the
// common taskId body and call one of store.Store's transition methods.
func (s *Server) cmdTaskTransition(ctx context.Context, body json.RawMessage, fn func(*store.Store, context.Context, store.Scope, string) error) (any, error) {
	var b taskIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, fn(s.store, ctx, b.scope(), b.TaskID)
}

func (s *Server) cmdTaskDelete(ctx context.Context, body json.RawMessage) (any, error) {
	var b taskIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.DeleteTask(ctx, b.scope(), b.TaskID)
}

type taskReorderBody struct {
	scopeBody
	OrderedTaskIDs []string `json:"orderedTaskIds"`
}

func (s *Server) cmdTaskReorder(ctx context.Context, body json.RawMessage) (any, error) {
	var b taskReorderBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return nil, s.store.Reorder(ctx, b.scope(), b.OrderedTaskIDs)
}

type taskListBody struct {
	scopeBody
	IncludeCompleted bool `json:"includeCompleted"`
	Limit            int  `json:"limit"`
}

func (s *Server) cmdTaskList(ctx context.Context, body json.RawMessage) (any, error) {
	var b taskListBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, b.scope(), b.IncludeCompleted, defaultLimit(b.Limit))
}

// --- stream ---

type streamSubscribeBody struct {
	Filters       Filters `json:"filters"`
	IncludeOutput bool    `json:"includeOutput"`
	AfterCursor   uint64  `json:"afterCursor"`
}

type streamSubscribeResult struct {
	SubscriptionID string `json:"subscriptionId"`
	Gap            bool   `json:"gap"`
}

func (s *Server) cmdStreamSubscribe(c *connection, body json.RawMessage) (any, error) {
	var b streamSubscribeBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	id := newSubscriptionID()
	res := s.bus.Subscribe(id, b.Filters, b.IncludeOutput, b.AfterCursor, c.send)
	c.registerSub(id)
	return streamSubscribeResult{SubscriptionID: res.subscriptionID, Gap: res.gap}, nil
}

type streamUnsubscribeBody struct {
	SubscriptionID string `json:"subscriptionId"`
}

func (s *Server) cmdStreamUnsubscribe(c *connection, body json.RawMessage) (any, error) {
	var b streamUnsubscribeBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	s.bus.Unsubscribe(b.SubscriptionID)
	c.unregisterSub(b.SubscriptionID)
	return nil, nil
}

// pty.subscribe-events is sugar over stream.subscribe scoped to one
// session's session-* events, with session-output included only when
// includeOutput is set, so TUI clients don't need to hand-build Filters.
type ptySubscribeEventsBody struct {
	SessionID     string `json:"sessionId"`
	IncludeOutput bool   `json:"includeOutput"`
	AfterCursor   uint64 `json:"afterCursor"`
}

func (s *Server) cmdPTYSubscribeEvents(c *connection, body json.RawMessage) (any, error) {
	var b ptySubscribeEventsBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	id := newSubscriptionID()
	filters := Filters{SessionIDs: []string{b.SessionID}}
	res := s.bus.Subscribe(id, filters, b.IncludeOutput, b.AfterCursor, c.send)
	c.registerSub(id)
	return streamSubscribeResult{SubscriptionID: res.subscriptionID, Gap: res.gap}, nil
}

// --- session ---

type sessionIDBody struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) cmdSessionList(body json.RawMessage) (any, error) {
	return s.sessions.List(), nil
}

func (s *Server) cmdSessionStatus(body json.RawMessage) (any, error) {
	var b sessionIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	live, ok := s.sessions.Get(b.SessionID)
	if !ok {
		return nil, notFound("session")
	}
	return live, nil
}

func (s *Server) cmdSessionSnapshot(body json.RawMessage) (any, error) {
	var b sessionIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	rt, ok := s.runtime(b.SessionID)
	if !ok {
		return nil, notFound("session")
	}
	return rt.oracle.Snapshot(), nil
}

type sessionRespondBody struct {
	SessionID  string `json:"sessionId"`
	CallerID   string `json:"callerId"`
	Text       string `json:"text"`
	DataBase64 string `json:"dataBase64"`
}

func (s *Server) cmdSessionRespond(body json.RawMessage) (any, error) {
	var b sessionRespondBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := s.sessions.CheckController(b.SessionID, b.CallerID); err != nil {
		return nil, err
	}
	rt, ok := s.runtime(b.SessionID)
	if !ok {
		return nil, notFound("session")
	}
	payload := []byte(b.Text)
	if b.DataBase64 != "" {
		if decoded, err := base64.StdEncoding.DecodeString(b.DataBase64); err == nil {
			payload = decoded
		}
	}
	rt.handle.Write(payload)
	if err := s.sessions.Respond(b.SessionID); err != nil {
		return nil, err
	}
	return nil, nil
}

type sessionClaimBody struct {
	SessionID       string `json:"sessionId"`
	ControllerID    string `json:"controllerId"`
	ControllerType  string `json:"type"`
	ControllerLabel string `json:"label"`
	Takeover        bool   `json:"takeover"`
}

type sessionClaimResult struct {
	Action string `json:"action"`
}

func (s *Server) cmdSessionClaim(body json.RawMessage) (any, error) {
	var b sessionClaimBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	action, err := s.sessions.Claim(b.SessionID, b.ControllerID, b.ControllerType, b.ControllerLabel, b.Takeover)
	if err != nil {
		return nil, err
	}
	return sessionClaimResult{Action: string(action)}, nil
}

type sessionReleaseBody struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

func (s *Server) cmdSessionRelease(body json.RawMessage) (any, error) {
	var b sessionReleaseBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	return nil, s.sessions.Release(b.SessionID)
}

func (s *Server) cmdSessionInterrupt(body json.RawMessage) (any, error) {
	var b sessionIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	rt, ok := s.runtime(b.SessionID)
	if !ok {
		return nil, notFound("session")
	}
	return nil, rt.handle.Signal(ptyhost.SignalInterrupt)
}

func (s *Server) cmdSessionRemove(body json.RawMessage) (any, error) {
	var b sessionIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	s.closeSession(b.SessionID)
	s.sessions.Remove(b.SessionID)
	return nil, nil
}

// --- attention ---

func (s *Server) cmdAttentionList(body json.RawMessage) (any, error) {
	all := s.sessions.List()
	out := make([]any, 0, len(all))
	for _, live := range all {
		if live.RuntimeStatus == "needs-input" {
			out = append(out, live)
		}
	}
	return out, nil
}

// --- pty ---

func (s *Server) cmdPTYStart(body json.RawMessage) (any, error) {
	var p startSessionParams
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, invalidf("%v", err)
	}
	rt, err := s.startSession(p)
	if err != nil {
		return nil, err
	}
	return struct {
		SessionID string `json:"sessionId"`
		PID       int    `json:"pid"`
	}{SessionID: rt.sessionID, PID: rt.handle.ProcessId()}, nil
}

type ptyAttachBody struct {
	SessionID   string `json:"sessionId"`
	SinceCursor uint64 `json:"sinceCursor"`
}

type ptyAttachResult struct {
	Chunks   []chunkDTO `json:"chunks"`
	Exited   bool       `json:"exited"`
	ExitCode *int       `json:"exitCode,omitempty"`
}

type chunkDTO struct {
	Cursor      uint64 `json:"cursor"`
	ChunkBase64 string `json:"chunkBase64"`
}

func (s *Server) cmdPTYAttach(body json.RawMessage) (any, error) {
	var b ptyAttachBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	rt, ok := s.runtime(b.SessionID)
	if !ok {
		return nil, notFound("session")
	}
	result := rt.replay(b.SinceCursor)
	return result, nil
}

func (s *Server) cmdPTYDetach(body json.RawMessage) (any, error) {
	// Ongoing delivery is carried by stream.subscribe, not a persistent
	// pty.attach handle, so detach is an acknowledgement only (no
	// per-attachment state to tear down here).
	return nil, nil
}

func (s *Server) cmdPTYClose(body json.RawMessage) (any, error) {
	var b sessionIDBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, invalidf("%v", err)
	}
	s.closeSession(b.SessionID)
	return nil, nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	return limit
}
