package kv

import "github.com/trezcool/masomo-portal/core/user"

func testUser() user.User {
	return user.User{ID: "u1", SchoolID: "s1", Name: "Sue", Email: "sue@riverside.test", Role: user.RoleStudent, IsActive: true}
}
