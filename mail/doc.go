// Package mail holds otpgate.MailSender implementations and the HTML OTP
// message composer.
//
// [LogSender] and [MemorySender] are for development and tests. Real delivery
// lives in the postmark and ses sub-packages.
package mail
