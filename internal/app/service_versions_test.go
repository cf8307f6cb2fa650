package app

import (
	"context"
	"errors"
	"testing"

	"propdesk/api/internal/diff"
)

func seedBlock(t *testing.T, svc *Service, title, content string) string {
	t.Helper()
	payload, err := svc.CreateBlock(context.Background(), BlockInput{
		Title:       title,
		Content:     content,
		SectionType: "technical",
	}, Session{UserID: "usr_1", UserName: "Avery"})
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	return payload["id"].(string)
}

func TestCreateBlockStartsHistoryAtVersionOne(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)

	blockID := seedBlock(t, svc, "Approach", "<p>First draft.</p>")

	payload, err := svc.ListBlockVersions(context.Background(), blockID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	versions := payload["versions"].([]map[string]any)
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}
	if versions[0]["versionNumber"].(int) != 1 {
		t.Fatalf("expected version 1, got %v", versions[0]["versionNumber"])
	}
	if versions[0]["changeDescription"].(string) != "Initial version" {
		t.Fatalf("unexpected description: %v", versions[0]["changeDescription"])
	}
}

func TestCheckpointNumbersAreSequential(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserID: "usr_1", UserName: "Avery"}

	blockID := seedBlock(t, svc, "Approach", "<p>v1</p>")
	for i := 0; i < 3; i++ {
		if _, err := svc.CheckpointBlock(ctx, blockID, "checkpoint", session); err != nil {
			t.Fatalf("checkpoint %d: %v", i, err)
		}
	}

	payload, err := svc.ListBlockVersions(ctx, blockID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	versions := payload["versions"].([]map[string]any)
	if len(versions) != 4 {
		t.Fatalf("expected 4 versions, got %d", len(versions))
	}
	// newest first
	for i, want := range []int{4, 3, 2, 1} {
		if got := versions[i]["versionNumber"].(int); got != want {
			t.Fatalf("position %d: expected version %d, got %d", i, want, got)
		}
	}
}

func TestRevertCheckpointsCurrentStateFirst(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserID: "usr_1", UserName: "Avery"}

	blockID := seedBlock(t, svc, "Approach", "<p>original</p>")
	if _, err := svc.UpdateBlock(ctx, blockID, BlockInput{Content: "<p>edited</p>"}, true, "second pass", session); err != nil {
		t.Fatalf("update: %v", err)
	}

	result, err := svc.RevertBlock(ctx, blockID, 1, session)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if result["revertedTo"].(int) != 1 {
		t.Fatalf("expected revertedTo=1, got %v", result["revertedTo"])
	}
	if result["content"].(string) != "<p>original</p>" {
		t.Fatalf("expected original content restored, got %q", result["content"])
	}

	block, err := fs.GetContentBlock(ctx, blockID)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if block.Content != "<p>original</p>" {
		t.Fatalf("live content not restored: %q", block.Content)
	}

	// revert must not delete history: v1, v2, plus the auto checkpoint
	versions, err := fs.ListVersions(ctx, blockID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions after revert, got %d", len(versions))
	}
	if versions[0].ChangeDescription != "Auto-saved before reverting to version 1" {
		t.Fatalf("unexpected safety checkpoint description: %q", versions[0].ChangeDescription)
	}
	if versions[0].Content != "<p>edited</p>" {
		t.Fatalf("safety checkpoint should hold the pre-revert content, got %q", versions[0].Content)
	}
}

func TestRevertToUnknownVersionFails(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	blockID := seedBlock(t, svc, "Approach", "<p>only version</p>")
	if _, err := svc.RevertBlock(ctx, blockID, 9, Session{UserName: "Avery"}); err == nil {
		t.Fatal("expected error reverting to missing version")
	}
	// no safety checkpoint should have been written
	versions, _ := fs.ListVersions(ctx, blockID)
	if len(versions) != 1 {
		t.Fatalf("expected history untouched, got %d versions", len(versions))
	}
}

func TestCompareVersionsAgainstCurrent(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserName: "Avery"}

	blockID := seedBlock(t, svc, "Approach", "<p>The team delivers quality work.</p>")
	if _, err := svc.UpdateBlock(ctx, blockID, BlockInput{Content: "<p>The team delivers exceptional work.</p>"}, false, "", session); err != nil {
		t.Fatalf("update: %v", err)
	}

	payload, err := svc.CompareBlockVersions(ctx, blockID, 1, 0)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if payload["from"].(string) != "v1" || payload["to"].(string) != "current" {
		t.Fatalf("unexpected labels: from=%v to=%v", payload["from"], payload["to"])
	}

	spans := payload["spans"]
	if spans == nil {
		t.Fatal("expected diff spans")
	}
}

func TestCompareIdenticalVersions(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	blockID := seedBlock(t, svc, "Approach", "<p>steady</p>")
	if _, err := svc.CheckpointBlock(ctx, blockID, "again", Session{UserName: "Avery"}); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	payload, err := svc.CompareBlockVersions(ctx, blockID, 1, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if payload["from"].(string) != "v1" || payload["to"].(string) != "v2" {
		t.Fatalf("unexpected labels: from=%v to=%v", payload["from"], payload["to"])
	}
}

func TestCompareVersionWithPredecessor(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserName: "Avery"}

	blockID := seedBlock(t, svc, "Approach", "<p>The team delivers quality work.</p>")
	if _, err := svc.UpdateBlock(ctx, blockID, BlockInput{Content: "<p>The team delivers exceptional work.</p>"}, true, "second pass", session); err != nil {
		t.Fatalf("update: %v", err)
	}

	payload, err := svc.CompareVersionWithPrevious(ctx, blockID, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	version := payload["version"].(map[string]any)
	if version["versionNumber"].(int) != 2 {
		t.Fatalf("expected version 2, got %v", version["versionNumber"])
	}
	previous := payload["previous"].(map[string]any)
	if previous["versionNumber"].(int) != 1 {
		t.Fatalf("expected previous version 1, got %v", previous["versionNumber"])
	}
	if spans := payload["spans"].([]diff.Span); len(spans) == 0 {
		t.Fatal("expected diff spans between versions")
	}
}

func TestCompareOldestVersionHasNoPredecessor(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	blockID := seedBlock(t, svc, "Approach", "<p>first</p>")
	payload, err := svc.CompareVersionWithPrevious(ctx, blockID, 1)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if payload["previous"] != nil {
		t.Fatalf("expected null previous for oldest version, got %v", payload["previous"])
	}
	if spans := payload["spans"].([]diff.Span); len(spans) != 0 {
		t.Fatalf("expected no spans for oldest version, got %v", spans)
	}
}

func TestUpdateWithoutCheckpointLeavesHistoryAlone(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	blockID := seedBlock(t, svc, "Approach", "<p>v1</p>")
	if _, err := svc.UpdateBlock(ctx, blockID, BlockInput{Content: "<p>working copy</p>"}, false, "", Session{UserName: "Avery"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	versions, _ := fs.ListVersions(ctx, blockID)
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}

	block, _ := fs.GetContentBlock(ctx, blockID)
	if block.Content != "<p>working copy</p>" {
		t.Fatalf("live content not updated: %q", block.Content)
	}
}

func TestMutationGuardRejectsConcurrentEdit(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	blockID := seedBlock(t, svc, "Approach", "<p>v1</p>")

	// hold the block's lock as a concurrent mutation would
	svc.blockLock(blockID).Lock()
	defer svc.blockLock(blockID).Unlock()

	_, err := svc.CheckpointBlock(ctx, blockID, "blocked", Session{UserName: "Avery"})
	if err == nil {
		t.Fatal("expected mutation conflict")
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %T", err)
	}
	if domainErr.Status != 409 || domainErr.Code != "MUTATION_IN_FLIGHT" {
		t.Fatalf("unexpected error: status=%d code=%s", domainErr.Status, domainErr.Code)
	}
}
