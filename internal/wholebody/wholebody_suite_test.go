package wholebody_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestWholebody(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Wholebody Suite")
}
