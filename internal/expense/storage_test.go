package expense

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		root    string
		dir     string
		storage *LocalStorage
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		dir = filepath.Join(root, "receipts")
		var err error
		storage, err = NewLocalStorage(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates its directory", func() {
		Expect(dir).To(BeADirectory())
	})

	DescribeTable("resolving names",
		func(name, expected string) {
			path, err := storage.resolve(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(dir, expected)))
		},
		Entry("plain name", "u1_e1_receipt.jpg", "u1_e1_receipt.jpg"),
		Entry("parent directory", "../secret.txt", "secret.txt"),
		Entry("deep climb", "../../../etc/passwd", "passwd"),
		Entry("absolute path", "/etc/passwd", "passwd"),
		Entry("nested directory", "a/b/c.png", "c.png"),
	)

	DescribeTable("rejecting names without a file",
		func(name string) {
			_, err := storage.resolve(name)
			Expect(err).To(MatchError(ContainSubstring("invalid file name")))
		},
		Entry("empty", ""),
		Entry("root", "/"),
		Entry("dot", "."),
		Entry("dot dot", ".."),
		Entry("climb to root", "../.."),
	)

	When("a file is saved", func() {
		var name string

		BeforeEach(func() {
			var err error
			name, err = storage.Save("u1_e1_receipt.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes it under the storage directory", func() {
			Expect(name).To(Equal("u1_e1_receipt.jpg"))
			Expect(filepath.Join(dir, name)).To(BeAnExistingFile())
		})

		It("reads it back", func() {
			Expect(storage.Get(name)).To(Equal([]byte("jpeg bytes")))
		})

		It("lists it", func() {
			files, err := storage.List()
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(1))
			Expect(files[0].Name).To(Equal(name))
			Expect(files[0].ModTime).NotTo(BeZero())
		})

		It("deletes it", func() {
			Expect(storage.Delete(name)).To(Succeed())
			Expect(filepath.Join(dir, name)).NotTo(BeAnExistingFile())
			_, err := storage.Get(name)
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("names that climb out", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0644)).To(Succeed())
		})

		It("cannot read a file beside the directory", func() {
			data, err := storage.Get("../secret.txt")
			Expect(err).To(MatchError(ErrNotFound))
			Expect(data).To(BeNil())
		})

		It("cannot delete a file beside the directory", func() {
			Expect(storage.Delete("../secret.txt")).To(MatchError(ContainSubstring("deleting file")))
			Expect(filepath.Join(root, "secret.txt")).To(BeAnExistingFile())
		})

		It("saves inside the directory instead", func() {
			name, err := storage.Save("../escaped.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("escaped.png"))
			Expect(filepath.Join(dir, "escaped.png")).To(BeAnExistingFile())
			Expect(filepath.Join(root, "escaped.png")).NotTo(BeAnExistingFile())
		})
	})

	It("returns ErrNotFound for a missing file", func() {
		_, err := storage.Get("missing.jpg")
		Expect(err).To(MatchError(ErrNotFound))
	})

	It("lists only regular files", func() {
		Expect(os.Mkdir(filepath.Join(dir, "nested"), 0755)).To(Succeed())
		_, err := storage.Save("a.png", []byte("a"))
		Expect(err).NotTo(HaveOccurred())

		files, err := storage.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(1))
		Expect(files[0].Name).To(Equal("a.png"))
	})
})
