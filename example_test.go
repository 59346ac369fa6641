package livefs_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/driver/memory"
)

func ExampleMountManager() {
	ctx := context.Background()

	mounts := livefs.NewMountManager()
	_ = mounts.Mount("/project", memory.New()) // local.New(root) in production
	_ = mounts.Mount("/app", memory.New())

	_ = mounts.Write(ctx, "/project/index.html", strings.NewReader("<h1>hello</h1>"))
	_ = mounts.Write(ctx, "/app/settings.json", strings.NewReader(`{"spaceUnits": 2}`))

	page, _ := mounts.ReadAll(ctx, "/project/index.html")
	fmt.Println(string(page))

	root, _ := mounts.ListContents(ctx, "/", false)
	for _, entry := range root {
		fmt.Println(entry.Name, entry.IsDir)
	}
	// Output:
	// <h1>hello</h1>
	// app true
	// project true
}

func ExampleMountManager_crossMountCopy() {
	ctx := context.Background()

	mounts := livefs.NewMountManager()
	_ = mounts.Mount("/project", memory.New())
	_ = mounts.Mount("/app", memory.New())

	_ = mounts.Write(ctx, "/project/style.css", strings.NewReader("body{margin:0}"))

	if err := mounts.Copy(ctx, "/project/style.css", "/app/backup/style.css"); err != nil {
		fmt.Println("Error:", err)
		return
	}

	info, _ := mounts.Stat(ctx, "/app/backup/style.css")
	fmt.Println(info.Name, info.Size, info.ContentType)
	// Output:
	// style.css 14 text/css
}

func ExampleNotFound() {
	ctx := context.Background()
	fs := memory.New()

	_, err := fs.Stat(ctx, "missing.txt")
	err = livefs.NotFound("stat", "/missing.txt", err)

	fmt.Println(livefs.IsNotExist(err))
	// Output:
	// true
}

func ExampleCanChecksum() {
	ctx := context.Background()
	var fs livefs.FileSystem = memory.New()

	_ = fs.Write(ctx, "data.txt", strings.NewReader("Hello, World!"))

	if cs, ok := fs.(livefs.CanChecksum); ok {
		sha, _ := cs.Checksum(ctx, "data.txt", livefs.ChecksumSHA256)
		md5, _ := cs.Checksum(ctx, "data.txt", livefs.ChecksumMD5)
		fmt.Println("SHA256:", sha)
		fmt.Println("MD5:", md5)
	}
	// Output:
	// SHA256: dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f
	// MD5: 65a8e27d8879283831b664bd8b7f0ad4
}

func ExampleNewCompositeChangeToken() {
	saved := livefs.NewCallbackChangeToken()
	composite := livefs.NewCompositeChangeToken(saved, livefs.NeverChangeToken{})

	fmt.Println("Has changed:", composite.HasChanged())
	saved.SignalChange()
	fmt.Println("Has changed:", composite.HasChanged())
	// Output:
	// Has changed: false
	// Has changed: true
}
