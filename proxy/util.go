package proxy

import "fmt"

func sprint(a any) string {
	return fmt.Sprintf("%v", a)
}
