package daemon

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/kidcam/internal/display"
	"github.com/eliteGoblin/kidcam/internal/domain"
)

var _ = Describe("Appliance loop", func() {
	var a *appliance

	build := func(opts applianceOptions) {
		var err error
		a, err = newAppliance(filepath.Join(GinkgoT().TempDir(), "pics"), opts)
		Expect(err).NotTo(HaveOccurred())
	}

	// enterCapture settles the switch at from, then moves it to to.
	enterCapture := func(from, to domain.SelectorPosition) {
		a.input.selector = from
		a.step()
		a.input.selector = to
		a.step()
	}

	listAlbum := func(identity string) []string {
		entries, err := os.ReadDir(a.albums.Path(identity))
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	BeforeEach(func() {
		build(applianceOptions{})
	})

	Describe("startup", func() {
		It("should start in gallery mode on the default album", func() {
			a.step()

			st := a.state()
			Expect(st.DisplayMode).To(Equal(domain.DisplayGallery))
			Expect(st.ActiveCamera).To(Equal(domain.CameraSelfie))
			Expect(st.CaptureMode).To(Equal(domain.CapturePicture))
			Expect(st.Recording).To(BeFalse())
			Expect(a.machine.Identity()).To(Equal(domain.DefaultIdentity))
			Expect(a.albums.Exists(domain.DefaultIdentity)).To(BeTrue())
		})

		It("should not leave the gallery for the first selector reading", func() {
			a.input.selector = domain.SelectorThree
			a.step()

			Expect(a.state().DisplayMode).To(Equal(domain.DisplayGallery))
			Expect(a.state().ActiveCamera).To(Equal(domain.CameraForward))
		})
	})

	Describe("selector", func() {
		Context("when the switch moves while browsing the gallery", func() {
			It("should switch camera and show the live view", func() {
				enterCapture(domain.SelectorOne, domain.SelectorThree)

				st := a.state()
				Expect(st.ActiveCamera).To(Equal(domain.CameraForward))
				Expect(st.CaptureMode).To(Equal(domain.CapturePicture))
				Expect(st.DisplayMode).To(Equal(domain.DisplayCapture))
			})
		})

		Context("when the switch moves while already in the live view", func() {
			It("should stay in the live view with the new mapping", func() {
				enterCapture(domain.SelectorOne, domain.SelectorThree)
				a.input.selector = domain.SelectorFour
				a.step()

				st := a.state()
				Expect(st.DisplayMode).To(Equal(domain.DisplayCapture))
				Expect(st.CaptureMode).To(Equal(domain.CaptureVideo))
			})
		})

		Context("when the switch rests in place", func() {
			It("should not pull the display out of the gallery", func() {
				enterCapture(domain.SelectorOne, domain.SelectorTwo)
				a.input.encoder = []domain.Direction{domain.DirectionForward}
				a.step()
				Expect(a.state().DisplayMode).To(Equal(domain.DisplayGallery))

				for i := 0; i < 5; i++ {
					a.step()
				}
				Expect(a.state().DisplayMode).To(Equal(domain.DisplayGallery))
			})
		})

		It("should open only the newly selected camera", func() {
			opens := a.camera.Opens()
			enterCapture(domain.SelectorOne, domain.SelectorThree)

			Expect(a.camera.Opens()).To(Equal(opens + 1))
		})
	})

	Describe("selector override", func() {
		It("should take precedence over the resting switch", func() {
			a.input.selector = domain.SelectorOne
			a.step()

			a.input.overrides = []domain.SelectorPosition{domain.SelectorFour}
			a.step()
			a.step()

			st := a.state()
			Expect(st.SelectorOverride).To(Equal(domain.SelectorFour))
			Expect(st.ActiveCamera).To(Equal(domain.CameraForward))
			Expect(st.CaptureMode).To(Equal(domain.CaptureVideo))
			Expect(st.DisplayMode).To(Equal(domain.DisplayCapture))
		})

		It("should be cleared when the switch moves", func() {
			a.input.selector = domain.SelectorOne
			a.step()
			a.input.overrides = []domain.SelectorPosition{domain.SelectorFour}
			a.step()

			a.input.selector = domain.SelectorTwo
			a.step()

			st := a.state()
			Expect(st.SelectorOverride).To(Equal(domain.SelectorNone))
			Expect(st.ActiveCamera).To(Equal(domain.CameraSelfie))
			Expect(st.CaptureMode).To(Equal(domain.CaptureVideo))
		})
	})

	Describe("gallery", func() {
		BeforeEach(func() {
			Expect(a.albums.Create(domain.DefaultIdentity, "a.jpg", "b.jpg", "c.mp4")).To(Succeed())
		})

		It("should scroll through the album and wrap around", func() {
			album := a.machine.Album()
			Expect(album.Position()).To(Equal(0))

			a.input.encoder = []domain.Direction{domain.DirectionForward}
			a.step()
			Expect(album.Position()).To(Equal(1))

			a.input.encoder = []domain.Direction{domain.DirectionForward}
			a.step()
			Expect(album.Position()).To(Equal(2))
			file, err := album.CurrentFile()
			Expect(err).NotTo(HaveOccurred())
			Expect(file.Kind()).To(Equal(domain.MediaVideo))

			a.input.encoder = []domain.Direction{domain.DirectionForward}
			a.step()
			Expect(album.Position()).To(Equal(0))
		})

		It("should undo a reverse step with a forward step", func() {
			a.input.encoder = []domain.Direction{domain.DirectionReverse, domain.DirectionForward}
			a.step()

			Expect(a.machine.Album().Position()).To(Equal(0))
		})

		It("should present the current file", func() {
			a.step()

			presents, _ := a.screen.Counts()
			Expect(presents).To(Equal(1))
			Expect(a.screen.Frame().Bounds().Dx()).To(Equal(screenWidth))
		})

		Context("when the live view is showing", func() {
			It("should return to the gallery on the first encoder step without scrolling", func() {
				enterCapture(domain.SelectorOne, domain.SelectorThree)
				a.input.encoder = []domain.Direction{domain.DirectionForward}
				a.step()

				Expect(a.state().DisplayMode).To(Equal(domain.DisplayGallery))
				Expect(a.machine.Album().Position()).To(Equal(0))
			})
		})

		Context("when the capture button is pressed in the gallery", func() {
			It("should surface the live view without taking a picture", func() {
				a.input.captures = 1
				a.step()

				Expect(a.state().DisplayMode).To(Equal(domain.DisplayCapture))
				Expect(a.albums.Count(domain.DefaultIdentity)).To(Equal(3))
			})
		})
	})

	Describe("camera failure", func() {
		It("should show a badge and recover once the camera opens", func() {
			a.camera.SetFailing(domain.CameraForward, true)
			enterCapture(domain.SelectorOne, domain.SelectorThree)

			Expect(a.state().DisplayMode).To(Equal(domain.DisplayCapture))
			Expect(a.machine.Notice().Kind).To(Equal(domain.KindDeviceUnavailable))
			_, err := a.machine.Preview()
			Expect(domain.KindOf(err)).To(Equal(domain.KindDeviceUnavailable))

			a.camera.SetFailing(domain.CameraForward, false)
			a.clock.Advance(2 * time.Second)
			a.step()

			_, err = a.machine.Preview()
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("empty album", func() {
		It("should show the empty album placeholder", func() {
			a.step()

			Expect(a.screen.Frame()).To(Equal(display.Placeholder(domain.KindEmptyAlbum, screenWidth, screenHeight)))
		})
	})

	Describe("picture capture", func() {
		It("should write a still into the active album", func() {
			enterCapture(domain.SelectorTwo, domain.SelectorOne)
			a.input.captures = 1
			a.step()

			names := listAlbum(domain.DefaultIdentity)
			Expect(names).To(HaveLen(1))
			Expect(names[0]).To(HaveSuffix(".jpg"))
			Expect(a.state().LastCaptureAt).To(Equal(a.clock.Now()))
		})

		It("should give rapid captures distinct names", func() {
			enterCapture(domain.SelectorTwo, domain.SelectorOne)
			for i := 0; i < 3; i++ {
				a.input.captures = 1
				a.step()
			}

			Expect(listAlbum(domain.DefaultIdentity)).To(HaveLen(3))
		})

		Context("when the album directory is removed from the media card", func() {
			It("should recreate it and keep capturing", func() {
				enterCapture(domain.SelectorTwo, domain.SelectorOne)
				Expect(os.RemoveAll(a.albums.Path(domain.DefaultIdentity))).To(Succeed())

				a.input.captures = 1
				a.step()

				Expect(listAlbum(domain.DefaultIdentity)).To(HaveLen(1))
				Expect(a.machine.Notice().Kind).To(Equal(domain.KindUnknown))
			})
		})

		Context("when storage is nearly full", func() {
			BeforeEach(func() {
				build(applianceOptions{freeMB: 50})
			})

			It("should refuse the capture and show a badge", func() {
				enterCapture(domain.SelectorTwo, domain.SelectorOne)
				a.input.captures = 1
				a.step()

				Expect(a.albums.Count(domain.DefaultIdentity)).To(Equal(0))
				Expect(a.machine.Notice().Kind).To(Equal(domain.KindStorageFull))

				want := display.Decorate(display.Blank(screenWidth, screenHeight), false, domain.KindStorageFull)
				Expect(a.screen.Frame().At(8, 8)).To(Equal(want.At(8, 8)))
			})
		})
	})

	Describe("video recording", func() {
		BeforeEach(func() {
			enterCapture(domain.SelectorOne, domain.SelectorTwo)
			a.input.captures = 1
			a.step()
		})

		It("should start recording into the active album", func() {
			Expect(a.state().Recording).To(BeTrue())

			names := listAlbum(domain.DefaultIdentity)
			Expect(names).To(HaveLen(1))
			Expect(names[0]).To(HaveSuffix(".mp4"))
		})

		It("should not stop before the timeout", func() {
			a.clock.Advance(4 * time.Second)
			a.step()

			Expect(a.state().Recording).To(BeTrue())
		})

		It("should stop automatically after the timeout", func() {
			a.clock.Advance(4 * time.Second)
			a.step()
			a.clock.Advance(2 * time.Second)
			a.step()

			Expect(a.state().Recording).To(BeFalse())
		})

		It("should ignore encoder and capture input while recording", func() {
			a.input.encoder = []domain.Direction{domain.DirectionForward}
			a.input.captures = 1
			a.step()

			Expect(a.state().Recording).To(BeTrue())
			Expect(a.state().DisplayMode).To(Equal(domain.DisplayCapture))
			Expect(listAlbum(domain.DefaultIdentity)).To(HaveLen(1))
		})

		It("should stop when the switch moves", func() {
			a.input.selector = domain.SelectorFour
			a.step()

			Expect(a.state().Recording).To(BeFalse())
			Expect(a.state().ActiveCamera).To(Equal(domain.CameraForward))
		})
	})

	Describe("identity tags", func() {
		It("should switch to the card's album and create it", func() {
			a.tags.id = "cardA"
			a.step()

			Expect(a.machine.Identity()).To(Equal("cardA"))
			Expect(a.albums.Exists("cardA")).To(BeTrue())
			Expect(a.watcher.watched).To(ContainElement(a.albums.Path("cardA")))

			_, err := a.machine.Album().CurrentFile()
			Expect(domain.KindOf(err)).To(Equal(domain.KindEmptyAlbum))
		})

		It("should keep existing files when a card is seen again", func() {
			Expect(a.albums.Create("cardA", "a.jpg")).To(Succeed())

			a.tags.id = "cardA"
			a.step()
			a.tags.id = ""
			a.step()
			a.tags.id = "cardA"
			a.step()

			Expect(a.albums.Count("cardA")).To(Equal(1))
		})

		It("should return to the default album when the card is removed", func() {
			a.tags.id = "cardA"
			a.step()
			a.tags.id = ""
			a.step()

			Expect(a.machine.Identity()).To(Equal(domain.DefaultIdentity))
			Expect(a.watcher.watched).To(Equal([]string{
				a.albums.Path("cardA"),
				a.albums.Path(domain.DefaultIdentity),
			}))
		})

		It("should save captures into the card's album", func() {
			a.tags.id = "cardA"
			enterCapture(domain.SelectorTwo, domain.SelectorOne)
			a.input.captures = 1
			a.step()

			Expect(a.albums.Count("cardA")).To(Equal(1))
			Expect(a.albums.Count(domain.DefaultIdentity)).To(Equal(0))
		})

		It("should stop a recording when the card changes", func() {
			enterCapture(domain.SelectorOne, domain.SelectorTwo)
			a.input.captures = 1
			a.step()
			Expect(a.state().Recording).To(BeTrue())

			a.tags.id = "cardB"
			a.step()

			Expect(a.state().Recording).To(BeFalse())
			Expect(a.machine.Identity()).To(Equal("cardB"))
		})
	})

	Describe("idle blanking", func() {
		BeforeEach(func() {
			build(applianceOptions{idleTimeout: time.Second})
		})

		It("should clear the screen once after the idle timeout", func() {
			a.step()
			a.clock.Advance(2 * time.Second)
			a.step()
			a.step()

			presents, clears := a.screen.Counts()
			Expect(presents).To(Equal(1))
			Expect(clears).To(Equal(1))
		})

		It("should wake on interaction", func() {
			a.clock.Advance(2 * time.Second)
			a.step()

			a.input.captures = 1
			a.step()

			presents, _ := a.screen.Counts()
			Expect(presents).To(Equal(1))
			Expect(a.state().DisplayMode).To(Equal(domain.DisplayCapture))
		})
	})

	Describe("shutdown", func() {
		It("should finalize the recording and release every device", func() {
			enterCapture(domain.SelectorOne, domain.SelectorTwo)
			a.input.captures = 1
			a.step()
			Expect(a.state().Recording).To(BeTrue())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := a.runner.Run(ctx)

			Expect(err).To(MatchError(context.Canceled))
			Expect(a.state().Recording).To(BeFalse())
			Expect(a.input.closed).To(BeTrue())
			Expect(a.tags.closed).To(BeTrue())
			Expect(a.watcher.closed).To(BeTrue())
			Expect(a.screen.Frame()).To(BeNil())
		})
	})
})
