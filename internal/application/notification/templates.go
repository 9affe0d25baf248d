package notification

import (
	"fmt"

	"github.com/go-notify-nosql/internal/domain"
)

func genericBundle(c domain.Category) func(int) string {
	return func(n int) string { return fmt.Sprintf("You have %d new %s notifications", n, c) }
}

// bundleTemplates maps every category to its aggregate phrasing.
var bundleTemplates = map[domain.Category]func(n int) string{
	domain.CategoryWelcome:      genericBundle(domain.CategoryWelcome),
	domain.CategoryVerification: genericBundle(domain.CategoryVerification),
	domain.CategoryListing:      genericBundle(domain.CategoryListing),
	domain.CategoryRepublish:    genericBundle(domain.CategoryRepublish),
	domain.CategoryEnquiry:      func(n int) string { return fmt.Sprintf("You have %d new property enquiries", n) },
	domain.CategoryReview:       func(n int) string { return fmt.Sprintf("You have %d new reviews", n) },
	domain.CategoryBoost:        func(n int) string { return fmt.Sprintf("You have %d new boost requests", n) },
	domain.CategoryBroadcast:    genericBundle(domain.CategoryBroadcast),
	domain.CategoryAlert:        genericBundle(domain.CategoryAlert),
	domain.CategoryWarning:      genericBundle(domain.CategoryWarning),
	domain.CategoryFollow:       func(n int) string { return fmt.Sprintf("%d people started following you", n) },
	domain.CategoryKYC:          genericBundle(domain.CategoryKYC),
	domain.CategoryOther:        genericBundle(domain.CategoryOther),
}

// BundleMessage renders the aggregate text for n events of category c.
func BundleMessage(c domain.Category, n int) string {
	if tmpl, ok := bundleTemplates[c]; ok {
		return tmpl(n)
	}
	return genericBundle(c)(n)
}
