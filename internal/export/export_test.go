package export

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeDataStore struct {
	proposal ProposalInfo
	sections []SectionInfo
	entries  map[string][]EntryInfo
	block    EntryInfo
}

func (f *fakeDataStore) GetProposalInfo(context.Context, string) (ProposalInfo, error) {
	return f.proposal, nil
}

func (f *fakeDataStore) ListSectionInfos(context.Context, string) ([]SectionInfo, error) {
	return f.sections, nil
}

func (f *fakeDataStore) GetSectionInfo(_ context.Context, id string) (SectionInfo, error) {
	for _, s := range f.sections {
		if s.ID == id {
			return s, nil
		}
	}
	return SectionInfo{}, nil
}

func (f *fakeDataStore) ListEntryInfos(_ context.Context, sectionID string) ([]EntryInfo, error) {
	return f.entries[sectionID], nil
}

func (f *fakeDataStore) GetBlockInfo(context.Context, string) (EntryInfo, error) {
	return f.block, nil
}

func newFakeStore() *fakeDataStore {
	deadline := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return &fakeDataStore{
		proposal: ProposalInfo{
			ID: "prop_1", Name: "Statewide Modernization", ClientName: "State of Example",
			RFPNumber: "RFP-2026-001", RFPDeadline: &deadline,
		},
		sections: []SectionInfo{
			{ID: "sec_1", ProposalID: "prop_1", Title: "Executive Summary"},
			{ID: "sec_2", ProposalID: "prop_1", Title: "Technical Approach"},
		},
		entries: map[string][]EntryInfo{
			"sec_1": {{Title: "Overview", Content: "<p>We understand the challenge.</p>"}},
			"sec_2": {{Content: "<p>Phase one covers discovery.</p>"}},
		},
	}
}

func TestProposalDataAssembly(t *testing.T) {
	svc := NewService(newFakeStore())
	data, err := svc.proposalData(context.Background(), "prop_1")
	if err != nil {
		t.Fatal(err)
	}
	if data.Title != "Statewide Modernization" || data.ClientName != "State of Example" {
		t.Fatalf("unexpected header data: %+v", data)
	}
	if data.Deadline != "March 15, 2026" {
		t.Fatalf("deadline = %q", data.Deadline)
	}
	if len(data.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(data.Sections))
	}
	if data.Sections[0].Entries[0].Title != "Overview" {
		t.Fatalf("unexpected entry: %+v", data.Sections[0].Entries[0])
	}
}

func TestProposalDataResolvesTrackChanges(t *testing.T) {
	store := newFakeStore()
	store.entries["sec_1"] = []EntryInfo{{
		Content: `<p>We <ins data-change-id="c1">fully </ins>understand<del data-change-id="c2"> maybe</del>.</p>`,
	}}
	svc := NewService(store)
	data, err := svc.proposalData(context.Background(), "prop_1")
	if err != nil {
		t.Fatal(err)
	}
	got := string(data.Sections[0].Entries[0].ContentHTML)
	if got != "<p>We fully understand.</p>" {
		t.Fatalf("export content = %q", got)
	}
}

func TestRenderProposalHTML(t *testing.T) {
	svc := NewService(newFakeStore())
	data, err := svc.proposalData(context.Background(), "prop_1")
	if err != nil {
		t.Fatal(err)
	}
	html, err := RenderProposalHTML(data)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Statewide Modernization",
		"State of Example",
		"Executive Summary",
		"<p>We understand the challenge.</p>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered html missing %q", want)
		}
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Export(context.Background(), Request{Kind: KindProposal, ID: "prop_1", Format: "rtf"})
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestExportUnsupportedKind(t *testing.T) {
	svc := NewService(newFakeStore())
	_, err := svc.Export(context.Background(), Request{Kind: "tag", ID: "x", Format: FormatDOCX})
	if err == nil || !strings.Contains(err.Error(), "unsupported export kind") {
		t.Fatalf("expected unsupported kind error, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Statewide Modernization": "Statewide-Modernization",
		"Q1/Q2 Plan (final)":      "Q1Q2-Plan-final",
		"":                        "proposal",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b+c")
	if got != "a%20b%2Bc" {
		t.Fatalf("encoded = %q", got)
	}
}
