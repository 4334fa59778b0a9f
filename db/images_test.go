package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestGeneratedImagesMostRecentFirst(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	if _, _, err := repo.EnsureProfile(ctx, "owner", "", 0); err != nil {
		t.Fatalf("EnsureProfile() error = %v", err)
	}

	for i := 1; i <= 3; i++ {
		img, err := repo.InsertGeneratedImage(ctx, GeneratedImage{
			ID:          fmt.Sprintf("img-%d", i),
			OwnerID:     "owner",
			Prompt:      "a mug on a beach",
			StoragePath: fmt.Sprintf("owner/img-%d.png", i),
			PublicURL:   fmt.Sprintf("http://localhost/img-%d.png", i),
			MIMEType:    "image/png",
		})
		if err != nil {
			t.Fatalf("InsertGeneratedImage(%d) error = %v", i, err)
		}
		if img.CreatedAt.IsZero() {
			t.Errorf("InsertGeneratedImage(%d) returned zero CreatedAt", i)
		}
	}

	images, err := repo.ListGeneratedImages(ctx, "owner", 0)
	if err != nil {
		t.Fatalf("ListGeneratedImages() error = %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("ListGeneratedImages() returned %d, want 3", len(images))
	}
	for i, want := range []string{"img-3", "img-2", "img-1"} {
		if images[i].ID != want {
			t.Errorf("images[%d].ID = %s, want %s", i, images[i].ID, want)
		}
	}

	limited, err := repo.ListGeneratedImages(ctx, "owner", 1)
	if err != nil {
		t.Fatalf("ListGeneratedImages(limit 1) error = %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "img-3" {
		t.Errorf("ListGeneratedImages(limit 1) = %+v", limited)
	}

	got, err := repo.GetGeneratedImage(ctx, "owner", "img-2")
	if err != nil {
		t.Fatalf("GetGeneratedImage() error = %v", err)
	}
	if got.Prompt != "a mug on a beach" {
		t.Errorf("GetGeneratedImage().Prompt = %q", got.Prompt)
	}
	if _, err := repo.GetGeneratedImage(ctx, "other", "img-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetGeneratedImage() for another owner error = %v, want ErrNotFound", err)
	}

	total, err := repo.CountGeneratedImages(ctx)
	if err != nil {
		t.Fatalf("CountGeneratedImages() error = %v", err)
	}
	if total != 3 {
		t.Errorf("CountGeneratedImages() = %d, want 3", total)
	}
}

func TestInsertGeneratedImageRequiresProfile(t *testing.T) {
	repo, _ := setupTestRepository(t)

	_, err := repo.InsertGeneratedImage(context.Background(), GeneratedImage{
		ID: "orphan", OwnerID: "nobody", Prompt: "p",
		StoragePath: "s", PublicURL: "u", MIMEType: "image/png",
	})
	if err == nil {
		t.Error("InsertGeneratedImage() succeeded without an owning profile")
	}
}
