package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
)

type (
	DB struct {
		user   *userTable
		school *schoolTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	schoolTable struct {
		table map[string]*school.School
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		school: &schoolTable{table: make(map[string]*school.School)},
	}
}
