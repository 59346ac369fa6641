package livefs_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/driver/memory"
)

func BenchmarkMountManager(b *testing.B) {
	ctx := context.Background()
	content := strings.Repeat("Hello, World! ", 100)

	mounts := livefs.NewMountManager()
	_ = mounts.Mount("/project", memory.New())
	_ = mounts.Mount("/project/vendor", memory.New())
	_ = mounts.Mount("/app", memory.New())
	for i := 0; i < 100; i++ {
		_ = mounts.Write(ctx, fmt.Sprintf("/project/src/file%d.js", i), strings.NewReader(content))
	}

	b.Run("stat", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := mounts.Stat(ctx, "/project/src/file42.js"); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("read", func(b *testing.B) {
		b.SetBytes(int64(len(content)))
		for i := 0; i < b.N; i++ {
			if _, err := mounts.ReadAll(ctx, "/project/src/file42.js"); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("list", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			if _, err := mounts.ListContents(ctx, "/project/src", false); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("write", func(b *testing.B) {
		b.SetBytes(int64(len(content)))
		for i := 0; i < b.N; i++ {
			if err := mounts.Write(ctx, "/app/scratch.txt", strings.NewReader(content)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkContentHash(b *testing.B) {
	data := []byte(strings.Repeat("x", 64<<10))
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		_ = livefs.ContentHash(data)
	}
}
