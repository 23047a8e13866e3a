package devserver

import (
	"fmt"
	"testing"

	"github.com/hitoshi/carelink/internal/model"
)

// TestStore_CreateUser_RejectsDuplicateEmail はメールアドレス重複の登録が
// 拒否されることを検証する。大文字小文字は区別しない。
func TestStore_CreateUser_RejectsDuplicateEmail(t *testing.T) {
	store := NewStore()

	if _, ok := store.CreateUser("山田太郎", "taro@example.com", []byte("hash"), model.RolePatient); !ok {
		t.Fatal("first CreateUser should succeed")
	}
	if _, ok := store.CreateUser("別の太郎", "TARO@example.com", []byte("hash"), model.RolePatient); ok {
		t.Error("duplicate email should be rejected case-insensitively")
	}
}

// TestStore_ListUsersExcept は自分自身が除外され、名前順で返ることを検証する。
func TestStore_ListUsersExcept(t *testing.T) {
	store := NewStore()
	self, _ := store.CreateUser("自分", "self@example.com", nil, model.RolePatient)
	store.CreateUser("佐藤医師", "sato@example.com", nil, model.RoleDoctor)
	store.CreateUser("安藤医師", "ando@example.com", nil, model.RoleDoctor)

	got := store.ListUsersExcept(self.ID)

	if len(got) != 2 {
		t.Fatalf("ListUsersExcept() length = %d, want 2", len(got))
	}
	if got[0].Name != "安藤医師" || got[1].Name != "佐藤医師" {
		t.Errorf("order = [%s, %s], want name ascending", got[0].Name, got[1].Name)
	}
	for _, c := range got {
		if c.ID == self.ID {
			t.Error("self should be excluded")
		}
	}
}

// TestStore_Notifications_NewestFirstAndLimit は通知が新しい順で返り、
// limitで切り詰められることを検証する。
func TestStore_Notifications_NewestFirstAndLimit(t *testing.T) {
	store := NewStore()
	for i := 0; i < 5; i++ {
		store.AddNotification("u1", fmt.Sprintf("通知%d", i), "本文")
	}

	got := store.ListNotifications("u1", 3)
	if len(got) != 3 {
		t.Fatalf("length = %d, want 3", len(got))
	}
	if got[0].Title != "通知4" {
		t.Errorf("got[0].Title = %q, want newest first", got[0].Title)
	}

	if count := store.UnreadNotificationCount("u1"); count != 5 {
		t.Errorf("unread count = %d, want 5", count)
	}
}

// TestStore_MarkNotificationRead は既読化が対象ユーザーの通知にのみ
// 作用することを検証する。
func TestStore_MarkNotificationRead(t *testing.T) {
	store := NewStore()
	n := store.AddNotification("u1", "通知", "本文")

	// 他ユーザーからは見えない
	if store.MarkNotificationRead("u2", n.ID) {
		t.Error("another user should not be able to mark the notification")
	}
	if !store.MarkNotificationRead("u1", n.ID) {
		t.Fatal("owner should be able to mark the notification")
	}
	if count := store.UnreadNotificationCount("u1"); count != 0 {
		t.Errorf("unread count = %d, want 0", count)
	}

	// 存在しないID
	if store.MarkNotificationRead("u1", "missing") {
		t.Error("missing ID should return false")
	}
}

// TestStore_MarkAllNotificationsRead は全既読化を検証する。
func TestStore_MarkAllNotificationsRead(t *testing.T) {
	store := NewStore()
	store.AddNotification("u1", "a", "")
	store.AddNotification("u1", "b", "")

	store.MarkAllNotificationsRead("u1")

	if count := store.UnreadNotificationCount("u1"); count != 0 {
		t.Errorf("unread count = %d, want 0", count)
	}
}

// TestStore_ListMessagesBetween は2者間のメッセージが時系列昇順で返り、
// limitが直近件数への切り詰めであることを検証する。
func TestStore_ListMessagesBetween(t *testing.T) {
	store := NewStore()
	store.AddMessage("a", "b", "1通目")
	store.AddMessage("b", "a", "2通目")
	store.AddMessage("a", "c", "無関係")
	store.AddMessage("a", "b", "3通目")

	got := store.ListMessagesBetween("a", "b", 0)
	if len(got) != 3 {
		t.Fatalf("length = %d, want 3", len(got))
	}
	if got[0].Body != "1通目" || got[2].Body != "3通目" {
		t.Errorf("order = %+v, want chronological", got)
	}

	// 直近2件に切り詰め（切り詰め後も昇順）
	got = store.ListMessagesBetween("a", "b", 2)
	if len(got) != 2 || got[0].Body != "2通目" || got[1].Body != "3通目" {
		t.Errorf("limited = %+v, want last 2 in order", got)
	}
}

// TestStore_MarkMessageRead_OnlyReceiver は受信者本人のみが既読化できることを検証する。
func TestStore_MarkMessageRead_OnlyReceiver(t *testing.T) {
	store := NewStore()
	msg := store.AddMessage("a", "b", "本文")

	if store.MarkMessageRead("a", msg.ID) {
		t.Error("sender should not be able to mark the message read")
	}
	if !store.MarkMessageRead("b", msg.ID) {
		t.Fatal("receiver should be able to mark the message read")
	}
}

// TestStore_Conversations は会話サマリーの集計を検証する。
func TestStore_Conversations(t *testing.T) {
	store := NewStore()
	doctor, _ := store.CreateUser("佐藤医師", "sato@example.com", nil, model.RoleDoctor)
	patient, _ := store.CreateUser("山田太郎", "taro@example.com", nil, model.RolePatient)
	other, _ := store.CreateUser("鈴木医師", "suzuki@example.com", nil, model.RoleDoctor)

	store.AddMessage(doctor.ID, patient.ID, "検査結果が出ました")
	store.AddMessage(patient.ID, doctor.ID, "ありがとうございます")
	store.AddMessage(doctor.ID, patient.ID, "お大事に")
	store.AddMessage(other.ID, patient.ID, "次回の予約について")

	convs := store.Conversations(patient.ID)
	if len(convs) != 2 {
		t.Fatalf("conversations length = %d, want 2", len(convs))
	}

	// 最終メッセージの新しい順
	if convs[0].CorrespondentID != other.ID {
		t.Errorf("convs[0] = %+v, want most recent counterpart first", convs[0])
	}

	var withDoctor model.Conversation
	for _, c := range convs {
		if c.CorrespondentID == doctor.ID {
			withDoctor = c
		}
	}
	if withDoctor.CorrespondentName != "佐藤医師" || withDoctor.CorrespondentRole != model.RoleDoctor {
		t.Errorf("conversation counterpart = %+v", withDoctor)
	}
	if withDoctor.LastMessagePreview != "お大事に" {
		t.Errorf("preview = %q, want latest message body", withDoctor.LastMessagePreview)
	}
	// 未読は医師から患者宛の2通
	if withDoctor.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", withDoctor.UnreadCount)
	}
}
