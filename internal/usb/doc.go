// Package usb reaches signs through the Linux usbdevfs interface.
//
// Signs are found by crawling sysfs for USB devices with the sign's vendor
// and product ids, and each opened node is guarded by an advisory file lock
// so that two processes never interleave packets on the same sign.
package usb
