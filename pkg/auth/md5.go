package auth

import (
	"crypto/md5"
	"fmt"
)

// ComputeMD5Password implements PostgreSQL's md5 password authentication:
// "md5" + md5(md5(password+user) + salt). salt is the 4-byte value carried
// by AuthenticationMD5Password.
func ComputeMD5Password(username, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + username))
	outer := md5.New()
	outer.Write([]byte(fmt.Sprintf("%x", inner)))
	outer.Write(salt[:])
	return "md5" + fmt.Sprintf("%x", outer.Sum(nil))
}
