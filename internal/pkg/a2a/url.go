package a2a

import (
	"net"
	"os"
	"strings"
)

// ServiceURL 返回名片中的访问地址，形如 http://host:port/。
// advertise 非空时直接使用，否则由监听地址 addr 推导，未指定主机时使用本机主机名。
func ServiceURL(advertise, addr string) string {
	if advertise != "" {
		if !strings.HasSuffix(advertise, "/") {
			advertise += "/"
		}
		return advertise
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if ip := net.ParseIP(host); host == "" || ip != nil && ip.IsUnspecified() {
		host = "localhost"
		if name, err := os.Hostname(); err == nil && name != "" {
			host = name
		}
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}
