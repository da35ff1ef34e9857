//go:build integration

package integration

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/kidcam/internal/domain"
	"github.com/eliteGoblin/kidcam/internal/infra"
	"github.com/eliteGoblin/kidcam/internal/usecase"
	"github.com/eliteGoblin/kidcam/test/fixtures"
)

var _ = Describe("Album registry on disk", func() {
	var (
		tmpDir  string
		baseDir string
		albums  *fixtures.FakeAlbums
		store   *infra.StateStore
		fsys    domain.FileSystem
	)

	newRegistry := func(resume bool) *usecase.AlbumRegistry {
		return usecase.NewAlbumRegistry(fsys, baseDir, usecase.RegistryOptions{
			Sort:           usecase.SortName,
			Cursors:        store,
			ResumePosition: resume,
		}, zap.NewNop())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "kidcam-integration-*")
		Expect(err).NotTo(HaveOccurred())

		baseDir = filepath.Join(tmpDir, "pics")
		albums = fixtures.NewFakeAlbums(baseDir)
		fsys = infra.NewAlbumFSWithHome(tmpDir)

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewStateStore(filepath.Join(tmpDir, "state"), key)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Activate", func() {
		Context("when the base directory is missing", func() {
			It("should create it along with the album", func() {
				registry := newRegistry(false)

				Expect(registry.Activate("cardA")).To(Succeed())
				Expect(albums.Exists("cardA")).To(BeTrue())
				Expect(registry.AlbumPath()).To(Equal(albums.Path("cardA")))
			})
		})

		Context("when the album already has files", func() {
			It("should never delete them", func() {
				Expect(albums.Create("cardA", "a.jpg", "b.jpg")).To(Succeed())
				registry := newRegistry(false)

				Expect(registry.Activate("cardA")).To(Succeed())
				Expect(registry.Activate("cardA")).To(Succeed())
				Expect(albums.Count("cardA")).To(Equal(2))
				Expect(registry.Album().Len()).To(Equal(2))
			})
		})

		Context("when the album cannot be created", func() {
			It("should fall back to the default album", func() {
				registry := newRegistry(false)
				Expect(registry.Activate(domain.DefaultIdentity)).To(Succeed())
				Expect(os.WriteFile(filepath.Join(baseDir, "blocked"), []byte("file"), 0644)).To(Succeed())

				err := registry.Activate("blocked")
				Expect(domain.KindOf(err)).To(Equal(domain.KindDirectoryCreate))
				Expect(registry.Identity()).To(Equal(domain.DefaultIdentity))
			})
		})
	})

	Describe("cursor resume", func() {
		BeforeEach(func() {
			Expect(albums.Create("cardA", "a.jpg", "b.jpg", "c.mp4")).To(Succeed())
		})

		Context("when resume is enabled", func() {
			It("should restore the cursor after the card comes back", func() {
				registry := newRegistry(true)
				Expect(registry.Activate("cardA")).To(Succeed())
				registry.Album().Scroll(domain.DirectionForward)
				registry.Album().Scroll(domain.DirectionForward)

				Expect(registry.Deactivate()).To(Succeed())
				Expect(registry.Activate("cardA")).To(Succeed())
				Expect(registry.Album().Position()).To(Equal(2))
			})

			It("should survive a restart", func() {
				registry := newRegistry(true)
				Expect(registry.Activate("cardA")).To(Succeed())
				registry.Album().Scroll(domain.DirectionReverse)
				registry.Close()

				restarted := newRegistry(true)
				Expect(restarted.Activate("cardA")).To(Succeed())
				Expect(restarted.Album().Position()).To(Equal(2))
			})
		})

		Context("when resume is disabled", func() {
			It("should start every activation at the first file", func() {
				registry := newRegistry(false)
				Expect(registry.Activate("cardA")).To(Succeed())
				registry.Album().Scroll(domain.DirectionForward)

				Expect(registry.Deactivate()).To(Succeed())
				Expect(registry.Activate("cardA")).To(Succeed())
				Expect(registry.Album().Position()).To(Equal(0))
			})
		})
	})

	Describe("Export", func() {
		It("should copy the album and skip hidden files", func() {
			Expect(albums.Create("cardA", "a.jpg", "b.mp4")).To(Succeed())
			Expect(os.WriteFile(filepath.Join(albums.Path("cardA"), ".partial"), []byte("x"), 0644)).To(Succeed())
			dest := filepath.Join(tmpDir, "usb")

			count, err := infra.NewExporter(baseDir).Export("cardA", dest)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))

			exported := fixtures.NewFakeAlbums(dest)
			Expect(exported.Count("cardA")).To(Equal(2))
		})
	})
})
