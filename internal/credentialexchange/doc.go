// credentialexchange
//
// Handles the direct exchange of an IdP SAML assertion for AWS temporary
// creds, plus the shared credential model both exchange paths return:
// role ARNs, credential output (credential_process payload, env exports,
// shared-credentials profile) and the OS secret-store cache.
package credentialexchange
