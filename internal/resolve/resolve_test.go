package resolve

import (
	"testing"

	"usermover/internal/model"
)

func catalog() []model.Store {
	return []model.Store{
		{CG: 1, SerialNumber: 10, Mid: 100},
		{CG: 2, SerialNumber: 11, Mid: 101},
		{CG: 3, SerialNumber: 12, Mid: 102},
	}
}

func user(cgs, sns []int32) model.User {
	u := model.NewUser("alice")
	u.Mid = 42
	u.CGs = cgs
	u.SerialNumbers = sns
	return u
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		u       model.User
		catalog []model.Store
		want    []int64
	}{
		{
			name:    "groups in iteration order",
			u:       user([]int32{1, 2}, nil),
			catalog: catalog(),
			want:    []int64{100, 101},
		},
		{
			name:    "group order follows rules not catalog",
			u:       user([]int32{3, 1}, nil),
			catalog: catalog(),
			want:    []int64{102, 100},
		},
		{
			name:    "serials ignore groups",
			u:       user([]int32{1, 2}, []int32{10, 11}),
			catalog: catalog(),
			want:    []int64{100, 101},
		},
		{
			name: "serial wins over group",
			u:    user([]int32{1}, []int32{500}),
			catalog: []model.Store{
				{CG: 9, SerialNumber: 500, Mid: 7},
				{CG: 1, SerialNumber: 999, Mid: 8},
			},
			want: []int64{7},
		},
		{
			name:    "no groups yields nothing even with serials",
			u:       user(nil, []int32{10}),
			catalog: catalog(),
			want:    []int64{},
		},
		{
			name:    "no groups and no serials",
			u:       user([]int32{}, []int32{}),
			catalog: catalog(),
			want:    []int64{},
		},
		{
			name: "duplicate serials in catalog all match",
			u:    user([]int32{1}, []int32{5}),
			catalog: []model.Store{
				{CG: 1, SerialNumber: 5, Mid: 1},
				{CG: 2, SerialNumber: 5, Mid: 2},
			},
			want: []int64{1, 2},
		},
		{
			name:    "overlapping rules keep duplicates",
			u:       user([]int32{1, 1}, nil),
			catalog: catalog(),
			want:    []int64{100, 100},
		},
		{
			name:    "unmatched group",
			u:       user([]int32{77}, nil),
			catalog: catalog(),
			want:    []int64{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Resolve(tt.u, tt.catalog)
			if !equalInt64(got, tt.want) {
				t.Fatalf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	got := Filter(catalog(), BySerial, 11)
	if len(got) != 1 || got[0].Mid != 101 {
		t.Fatalf("Filter by serial = %+v", got)
	}
	if got := Filter(catalog(), ByCG, 42); len(got) != 0 {
		t.Fatalf("Filter unmatched = %+v", got)
	}
	if got := Filter(catalog(), Field(99), 1); len(got) != 0 {
		t.Fatalf("Filter unknown field = %+v", got)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	users := []model.User{
		user([]int32{1, 2}, nil),
		user([]int32{1}, []int32{12}),
		user(nil, []int32{10}),
		user([]int32{55}, nil),
	}
	st := Apply(users, catalog())

	if st.Group != 2 || st.Serial != 1 || st.None != 1 || st.Empty != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.Stores != 3 {
		t.Fatalf("stores = %d, want 3", st.Stores)
	}
	if !equalInt64(users[0].StoreMids, []int64{100, 101}) {
		t.Fatalf("users[0] = %v", users[0].StoreMids)
	}
	if !equalInt64(users[1].StoreMids, []int64{102}) {
		t.Fatalf("users[1] = %v", users[1].StoreMids)
	}
	if len(users[2].StoreMids) != 0 || users[2].StoreMids == nil {
		t.Fatalf("users[2] = %#v", users[2].StoreMids)
	}
}

func equalInt64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
