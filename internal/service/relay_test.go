package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"campus-attendance/internal/mattermost"
	"campus-attendance/internal/model"
)

func TestChatRelay(t *testing.T) {
	var (
		mu    sync.Mutex
		posts []mattermost.Post
		fail  bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		var p mattermost.Post
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		posts = append(posts, p)
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	stored := &stubNotifier{}
	relay := NewChatRelay(stored, mattermost.NewClient(srv.URL, "token"), "approvals")
	ctx := context.Background()

	leave := &model.LeaveRequest{ID: "l1", Type: model.LeaveTypeCasual, FromDate: "2025-03-04", ToDate: "2025-03-04", Days: 1, Status: model.LeaveStatusPending, CurrentApprovalLevel: "HOD"}
	n := &model.Notification{UserID: "u1", Title: "Leave request forwarded", Type: model.NotificationInfo, Category: model.NotificationCategoryLeave, Details: model.DetailsOf(leave)}
	if err := relay.Emit(ctx, n); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := relay.Emit(ctx, &model.Notification{UserID: "u1", Title: "general"}); err != nil {
		t.Fatalf("Emit general: %v", err)
	}

	mu.Lock()
	if len(posts) != 1 || posts[0].ChannelID != "approvals" || posts[0].Props.Attachments[0].Fields[5].Value != "pending @ HOD" {
		t.Errorf("posts = %+v", posts)
	}
	fail = true
	mu.Unlock()

	if err := relay.Emit(ctx, n); err == nil {
		t.Error("Emit with chat down: want error")
	}
	if len(stored.sent) != 3 {
		t.Errorf("stored %d notifications, want 3", len(stored.sent))
	}
}
