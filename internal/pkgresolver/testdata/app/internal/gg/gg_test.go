package g2_test
