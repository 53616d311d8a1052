package shared

import "testing"

func TestNewPagination(t *testing.T) {
	p := NewPagination(3, 50, 120)
	if p.Page != 3 || p.PerPage != 50 {
		t.Fatalf("unexpected page/limit: %d/%d", p.Page, p.PerPage)
	}
	if p.Total != 120 {
		t.Fatalf("unexpected total: %d", p.Total)
	}
	if p.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", p.TotalPages)
	}
	if p.Offset() != 100 {
		t.Fatalf("expected offset 100, got %d", p.Offset())
	}
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 10)
	if p.Page != 1 {
		t.Fatalf("expected page 1, got %d", p.Page)
	}
	if p.PerPage != DefaultPageSize {
		t.Fatalf("expected default limit, got %d", p.PerPage)
	}
	if p.TotalPages != 1 {
		t.Fatalf("expected 1 total page, got %d", p.TotalPages)
	}
	if p.Offset() != 0 {
		t.Fatalf("expected offset 0, got %d", p.Offset())
	}
}

func TestNewPaginationEmpty(t *testing.T) {
	p := NewPagination(1, 50, 0)
	if p.TotalPages != 0 {
		t.Fatalf("expected 0 total pages, got %d", p.TotalPages)
	}
}
