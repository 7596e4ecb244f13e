package store

import (
	"cmp"
	"slices"

	"uniattend/internal/model"
)

// Key-ordered backends sort by creation time to match insertion order.

func sortUsers(us []model.User) {
	slices.SortStableFunc(us, func(a, b model.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortCourses(cs []model.Course) {
	slices.SortStableFunc(cs, func(a, b model.Course) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
