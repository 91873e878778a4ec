package models

// Group is one of the three top-level category buckets
type Group string

const (
	GroupMessages Group = "messages"
	GroupFeedback Group = "feedback"
	GroupWatch    Group = "watch"
)

// Groups lists every category group in display order
var Groups = []Group{GroupMessages, GroupFeedback, GroupWatch}

// FeedbackType identifies a leaf of the feedback group
type FeedbackType string

const (
	FeedbackComments       FeedbackType = "comments"
	FeedbackReplies        FeedbackType = "replies"
	FeedbackMentions       FeedbackType = "mentions"
	FeedbackActivity       FeedbackType = "activity"
	FeedbackCorrespondence FeedbackType = "correspondence"

	// FeedbackAggregate is the pseudo-type served by the newer notification
	// surface. It replaces the individual types rather than adding to them.
	FeedbackAggregate FeedbackType = "aggregate"
)

// FeedbackTypes are the feedback leaves a user may enable or disable
var FeedbackTypes = []FeedbackType{
	FeedbackComments,
	FeedbackReplies,
	FeedbackMentions,
	FeedbackActivity,
	FeedbackCorrespondence,
}

// WatchType identifies a leaf of the watch group
type WatchType string

const (
	WatchDeviations      WatchType = "deviations"
	WatchGroupDeviations WatchType = "groupDeviations"
	WatchJournals        WatchType = "journals"
	WatchForums          WatchType = "forums"
	WatchPolls           WatchType = "polls"
	WatchStatus          WatchType = "status"
	WatchCommissions     WatchType = "commissions"
	WatchMisc            WatchType = "misc"
)

// WatchTypes are the watch leaves a user may enable or disable
var WatchTypes = []WatchType{
	WatchDeviations,
	WatchGroupDeviations,
	WatchJournals,
	WatchForums,
	WatchPolls,
	WatchStatus,
	WatchCommissions,
	WatchMisc,
}

// feedbackLeaves is every feedback key a snapshot carries
var feedbackLeaves = append(append([]FeedbackType{}, FeedbackTypes...), FeedbackAggregate)

// FeedbackReadableNames label feedback types in notification breakdowns
var FeedbackReadableNames = map[FeedbackType]string{
	FeedbackComments:       "Comment",
	FeedbackReplies:        "Reply",
	FeedbackMentions:       "Mention",
	FeedbackActivity:       "Activity",
	FeedbackCorrespondence: "Correspondence",
	FeedbackAggregate:      "Notification",
}

// WatchReadableNames label watch types in notification breakdowns
var WatchReadableNames = map[WatchType]string{
	WatchDeviations:      "Deviation",
	WatchGroupDeviations: "Group Deviation",
	WatchJournals:        "Post",
	WatchForums:          "Forum",
	WatchPolls:           "Poll",
	WatchStatus:          "Status Update",
	WatchCommissions:     "Commission",
	WatchMisc:            "Miscellaneous",
}

// Leaf selects a countable bucket. An empty Type selects the whole group.
type Leaf struct {
	Group Group  `json:"group"`
	Type  string `json:"type,omitempty"`
}

// IsValidFeedbackType reports whether t may appear in a feedback disable list
func IsValidFeedbackType(t string) bool {
	for _, known := range FeedbackTypes {
		if string(known) == t {
			return true
		}
	}
	return false
}

// IsValidWatchType reports whether t may appear in a watch disable list
func IsValidWatchType(t string) bool {
	for _, known := range WatchTypes {
		if string(known) == t {
			return true
		}
	}
	return false
}
